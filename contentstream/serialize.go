package contentstream

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Serialize renders operations back to content bytes: operands separated by
// spaces, then the operator, one operation per line. Round trips preserve
// semantics, not necessarily the original bytes.
func Serialize(ops []Operation) []byte {
	var buf bytes.Buffer
	for _, op := range ops {
		if op.Operator == "BI" && len(op.Operands) == 1 {
			if img, ok := op.Operands[0].(InlineImageOperand); ok {
				writeInlineImage(&buf, img)
				continue
			}
		}
		for i, operand := range op.Operands {
			if i > 0 {
				buf.WriteByte(' ')
			}
			writeOperand(&buf, operand)
		}
		if len(op.Operands) > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(op.Operator)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func writeOperand(buf *bytes.Buffer, v Operand) {
	switch o := v.(type) {
	case NumberOperand:
		buf.WriteString(FormatNumber(o.Value))
	case NameOperand:
		buf.WriteByte('/')
		buf.WriteString(NameLiteral(o.Value))
	case StringOperand:
		buf.Write(EscapeLiteralString(o.Value))
	case ArrayOperand:
		buf.WriteByte('[')
		for i, item := range o.Values {
			if i > 0 {
				buf.WriteByte(' ')
			}
			writeOperand(buf, item)
		}
		buf.WriteByte(']')
	case DictOperand:
		buf.WriteString("<<")
		keys := make([]string, 0, len(o.Values))
		for k := range o.Values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			buf.WriteString("/" + NameLiteral(k) + " ")
			writeOperand(buf, o.Values[k])
		}
		buf.WriteString(">>")
	case BoolOperand:
		if o.Value {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case NullOperand:
		buf.WriteString("null")
	case InlineImageOperand:
		writeInlineImage(buf, o)
	}
}

func writeInlineImage(buf *bytes.Buffer, img InlineImageOperand) {
	buf.WriteString("BI")
	keys := make([]string, 0, len(img.Image.Values))
	for k := range img.Image.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf.WriteString(" /" + NameLiteral(k) + " ")
		writeOperand(buf, img.Image.Values[k])
	}
	buf.WriteString(" ID\n")
	buf.Write(img.Data)
	buf.WriteString("\nEI\n")
}

// FormatNumber renders a PDF numeric operand. Exponent notation is not
// valid in PDF syntax, so integers print as integers and reals in plain
// decimal form.
func FormatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e12 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// EscapeLiteralString renders bytes as a PDF literal string with
// backslash escapes and octal for bytes outside printable ASCII.
func EscapeLiteralString(raw []byte) []byte {
	var b bytes.Buffer
	b.WriteByte('(')
	for _, ch := range raw {
		switch ch {
		case '\\', '(', ')':
			b.WriteByte('\\')
			b.WriteByte(ch)
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		case '\b':
			b.WriteString("\\b")
		case '\f':
			b.WriteString("\\f")
		default:
			if ch < 0x20 || ch >= 0x80 {
				fmt.Fprintf(&b, "\\%03o", ch)
			} else {
				b.WriteByte(ch)
			}
		}
	}
	b.WriteByte(')')
	return b.Bytes()
}

// NameLiteral escapes name bytes that PDF syntax cannot carry directly.
func NameLiteral(value string) string {
	needsEscape := false
	for i := 0; i < len(value); i++ {
		if !isRegularNameByte(value[i]) {
			needsEscape = true
			break
		}
	}
	if !needsEscape {
		return value
	}
	var b bytes.Buffer
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if isRegularNameByte(ch) {
			b.WriteByte(ch)
			continue
		}
		fmt.Fprintf(&b, "#%02X", ch)
	}
	return b.String()
}

func isRegularNameByte(ch byte) bool {
	return ch > 0x20 && ch < 0x7f && ch != '#' && !isDelim(ch)
}
