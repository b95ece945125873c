package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wippyai/native-bridge/resource"
	"github.com/wippyai/native-bridge/typeinfo"
)

func kindOf(info typeinfo.Info) string {
	switch info.(type) {
	case *typeinfo.CallableInfo:
		return "func"
	case *typeinfo.StructInfo:
		return "struct"
	case *typeinfo.ObjectInfo:
		return "object"
	case *typeinfo.EnumInfo:
		return "enum"
	case *typeinfo.ConstantInfo:
		return "const"
	default:
		return "?"
	}
}

// summarize renders a one-line description of a descriptor.
func summarize(info typeinfo.Info) string {
	switch i := info.(type) {
	case *typeinfo.CallableInfo:
		return signature(i)
	case *typeinfo.StructInfo:
		return fmt.Sprintf("%s {%d fields, %d bytes}", i.Name, len(i.Fields), i.Size)
	case *typeinfo.ObjectInfo:
		if i.Parent != nil {
			return fmt.Sprintf("%s : %s {%d bytes}", i.Name, i.Parent.Qualified(), i.Size)
		}
		return fmt.Sprintf("%s {%d bytes}", i.Name, i.Size)
	case *typeinfo.EnumInfo:
		return fmt.Sprintf("%s (%s, %d values)", i.Name, i.Storage, len(i.Values))
	case *typeinfo.ConstantInfo:
		return fmt.Sprintf("%s %s = %v", i.Name, i.Type, i.Value)
	default:
		return info.Header().Qualified()
	}
}

// signature renders "name(a: int32, b: int32) -> int32 throws".
func signature(info *typeinfo.CallableInfo) string {
	var b strings.Builder
	b.WriteString(info.Name)
	b.WriteByte('(')
	for i, p := range info.Sig.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		if p.Direction != typeinfo.DirIn {
			b.WriteString(p.Direction.String())
			b.WriteByte(' ')
		}
		b.WriteString(p.Name)
		b.WriteString(": ")
		b.WriteString(p.Type.String())
	}
	b.WriteByte(')')
	if info.Sig.Return.Kind != typeinfo.KindVoid {
		b.WriteString(" -> ")
		b.WriteString(info.Sig.Return.String())
	}
	if info.Sig.Throws {
		b.WriteString(" throws")
	}
	return b.String()
}

// parseArg converts one CLI string into a host value for the parameter
// type. Compounds cannot be written on a command line.
func parseArg(value string, desc typeinfo.TypeDesc) (any, error) {
	if desc.Kind == typeinfo.KindInterface {
		if _, ok := desc.Iface.(*typeinfo.EnumInfo); ok {
			// Numbers pass as values, anything else as a member name.
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				return n, nil
			}
			return value, nil
		}
		return nil, fmt.Errorf("cannot build %s from a string", desc)
	}

	switch desc.Kind {
	case typeinfo.KindBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%q is not a bool", value)
		}
		return b, nil
	case typeinfo.KindInt8, typeinfo.KindInt16, typeinfo.KindInt32,
		typeinfo.KindInt64, typeinfo.KindInt, typeinfo.KindSSize:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", value)
		}
		return n, nil
	case typeinfo.KindUint8, typeinfo.KindUint16, typeinfo.KindUint32,
		typeinfo.KindUint64, typeinfo.KindUint, typeinfo.KindSize, typeinfo.KindGType:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an unsigned integer", value)
		}
		return u, nil
	case typeinfo.KindFloat32, typeinfo.KindFloat64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", value)
		}
		return f, nil
	case typeinfo.KindString, typeinfo.KindFilename:
		return value, nil
	}
	return nil, fmt.Errorf("unsupported parameter kind %s", desc.Kind)
}

func renderValues(values []any) string {
	if len(values) == 0 {
		return "(void)"
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = renderValue(v)
	}
	return strings.Join(parts, ", ")
}

func renderValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case *resource.Compound:
		return v.String()
	case string:
		return strconv.Quote(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
