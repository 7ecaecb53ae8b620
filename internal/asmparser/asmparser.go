// Package asmparser implements the textual-assembly parser, spec.md §4.6:
// a restricted, line-oriented dialect (AT&T by default, Intel once a
// `.intel_syntax noprefix` directive is seen) that drives the encoder
// directly and produces an object file without going through the AST/IR
// pipeline at all.
package asmparser

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/minic-lang/minicc/internal/encoder"
	"github.com/minic-lang/minicc/internal/object"
)

type section int

const (
	sectText section = iota
	sectData
)

// Parser holds the state one assembly file's parse accumulates: the
// current section, syntax dialect, and bitness, all of which directives
// can change mid-file.
type Parser struct {
	obj     *object.Writer
	textEnc *encoder.Encoder
	dataEnc *encoder.Encoder
	cur     section

	intelSyntax bool
	globals     map[string]bool
	line        int
}

// New returns a Parser that will emit into obj, starting in AT&T syntax,
// 64-bit mode, .text section.
func New(obj *object.Writer) *Parser {
	return &Parser{
		obj:     obj,
		textEnc: encoder.New(obj.Text, 64),
		dataEnc: encoder.New(obj.Data, 64),
		cur:     sectText,
		globals: make(map[string]bool),
	}
}

func (p *Parser) enc() *encoder.Encoder {
	if p.cur == sectData {
		return p.dataEnc
	}
	return p.textEnc
}

func (p *Parser) sectionID() int {
	if p.cur == sectData {
		return object.SectionData
	}
	return object.SectionText
}

// Parse reads r line by line and drives the encoder/object writer.
// Returns a non-zero-worthy error on the first malformed line; spec.md §7
// "the textual-assembly parser returns a non-zero status".
func (p *Parser) Parse(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.line++
		line := stripComment(scanner.Text())
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := p.parseLine(line); err != nil {
			return fmt.Errorf("line %d: %w", p.line, err)
		}
	}
	return scanner.Err()
}

func (p *Parser) parseLine(line string) error {
	if strings.HasPrefix(line, ".") {
		return p.parseDirective(line)
	}
	if strings.HasSuffix(line, ":") {
		name := strings.TrimSuffix(line, ":")
		storage := object.StorageStatic
		if p.globals[name] {
			storage = object.StorageExternal
		}
		p.obj.AddSymbol(name, uint64(p.enc().Buf.Len()), p.sectionID(), object.TypeNone, uint8(storage))
		return nil
	}
	return p.parseInstruction(line)
}

func (p *Parser) parseDirective(line string) error {
	fields := strings.Fields(line)
	name := fields[0]
	switch name {
	case ".global", ".globl":
		if len(fields) < 2 {
			return fmt.Errorf(".global needs a symbol name")
		}
		p.globals[fields[1]] = true
	case ".code16":
		p.textEnc.Bits = 16
		p.dataEnc.Bits = 16
	case ".intel_syntax":
		if len(fields) >= 2 && fields[1] == "noprefix" {
			p.intelSyntax = true
		}
	case ".section":
		rest := strings.TrimSpace(strings.TrimPrefix(line, name))
		switch {
		case strings.HasPrefix(rest, ".text"):
			p.cur = sectText
		case strings.HasPrefix(rest, ".data"):
			p.cur = sectData
		default:
			return fmt.Errorf("unknown section %q", rest)
		}
	case ".byte":
		return p.emitData(strings.TrimSpace(strings.TrimPrefix(line, name)), 1)
	case ".word":
		return p.emitData(strings.TrimSpace(strings.TrimPrefix(line, name)), 2)
	case ".long":
		return p.emitData(strings.TrimSpace(strings.TrimPrefix(line, name)), 4)
	default:
		return fmt.Errorf("unknown directive %q", name)
	}
	return nil
}

func (p *Parser) emitData(csv string, width int) error {
	buf := p.enc().Buf
	for _, item := range strings.Split(csv, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		v, err := parseIntLiteral(item)
		if err != nil {
			return err
		}
		switch width {
		case 1:
			buf.WriteByte(byte(v))
		case 2:
			buf.WriteByte(byte(v))
			buf.WriteByte(byte(v >> 8))
		case 4:
			buf.WriteDword(uint32(v))
		}
	}
	return nil
}

// parseInstruction parses "mnemonic op1, op2, op3" (0-3 operands) and
// drives the encoder, spec.md §4.6 "Each parsed line feeds the encoder
// with encode_inst{0,1,2,3}".
func (p *Parser) parseInstruction(line string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()

	sp := strings.IndexAny(line, " \t")
	mnemonic := line
	rest := ""
	if sp >= 0 {
		mnemonic = line[:sp]
		rest = strings.TrimSpace(line[sp+1:])
	}

	var ops []encoder.Operand
	if rest != "" {
		for _, part := range splitOperands(rest) {
			op, err := p.parseOperand(strings.TrimSpace(part))
			if err != nil {
				return err
			}
			ops = append(ops, op)
		}
		if p.intelSyntax {
			reverseOperands(ops)
		}
	}

	e := p.enc()
	before := len(e.Relocs())
	e.Emit(strings.ToLower(mnemonic), ops...)
	p.obj.AddRelocsFromEncoder(e.Relocs()[before:], 0, p.sectionID())
	return nil
}

// splitOperands splits on top-level commas only, respecting [base+disp]
// brackets so a memory operand's internal comma-free syntax stays intact.
func splitOperands(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, c := range s {
		switch c {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func reverseOperands(ops []encoder.Operand) {
	for i, j := 0, len(ops)-1; i < j; i, j = i+1, j-1 {
		ops[i], ops[j] = ops[j], ops[i]
	}
}

func (p *Parser) parseOperand(s string) (encoder.Operand, error) {
	switch {
	case strings.HasPrefix(s, "["):
		return parseMemOperand(s)
	case strings.HasPrefix(s, "$"):
		v, err := parseIntLiteral(s[1:])
		if err != nil {
			return encoder.Operand{}, err
		}
		return encoder.Imm(v), nil
	case strings.HasPrefix(s, "%"):
		return encoder.Reg(strings.TrimPrefix(s, "%")), nil
	case strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'") && len(s) >= 3:
		return encoder.Imm(int64(s[1])), nil
	case encoder.IsRegisterName(s):
		return encoder.Reg(s), nil
	default:
		if v, err := parseIntLiteral(s); err == nil {
			return encoder.Imm(v), nil
		}
		return encoder.Label(s), nil
	}
}

// parseMemOperand handles "[reg]" and "[reg+disp]"/"[reg-disp]".
func parseMemOperand(s string) (encoder.Operand, error) {
	inner := strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	inner = strings.TrimSpace(inner)

	sign := int32(1)
	splitAt := -1
	for i := 1; i < len(inner); i++ {
		if inner[i] == '+' || inner[i] == '-' {
			splitAt = i
			if inner[i] == '-' {
				sign = -1
			}
			break
		}
	}
	if splitAt < 0 {
		base := strings.TrimPrefix(inner, "%")
		return encoder.Mem(base, 0), nil
	}
	base := strings.TrimSpace(strings.TrimPrefix(inner[:splitAt], "%"))
	dispStr := strings.TrimSpace(inner[splitAt+1:])
	dv, err := parseIntLiteral(dispStr)
	if err != nil {
		return encoder.Operand{}, err
	}
	return encoder.Mem(base, sign*int32(dv)), nil
}

// parseIntLiteral accepts decimal, 0x hex, and 0-prefixed octal, spec.md
// §4.6 "integer literal (decimal/hex/octal via standard parsing)".
func parseIntLiteral(s string) (int64, error) {
	s = strings.TrimSpace(s)
	return strconv.ParseInt(s, 0, 64)
}

func stripComment(line string) string {
	if i := strings.Index(line, "//"); i >= 0 {
		line = line[:i]
	}
	for {
		start := strings.Index(line, "/*")
		if start < 0 {
			break
		}
		end := strings.Index(line[start:], "*/")
		if end < 0 {
			line = line[:start]
			break
		}
		line = line[:start] + line[start+end+2:]
	}
	return line
}
