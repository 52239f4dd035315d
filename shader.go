package gpgpu

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
)

//go:embed shaders/preamble.wgsl
var preambleSource string

// Entry points of every synthesized program.
const (
	VertexEntryPoint   = "bl_vertex"
	FragmentEntryPoint = "bl_fragment"

	// QuadVertexCount is the vertex count of the triangle-strip quad.
	QuadVertexCount = 4
)

// Preamble returns the fixed text every synthesized program starts with.
func Preamble() string { return preambleSource }

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reservedNames cannot be used as buffer or uniform names.
var reservedNames = map[string]bool{
	"main": true, "alias": true, "break": true, "case": true, "const": true,
	"const_assert": true, "continue": true, "continuing": true, "default": true,
	"diagnostic": true, "discard": true, "else": true, "enable": true,
	"false": true, "fn": true, "for": true, "if": true, "let": true,
	"loop": true, "override": true, "requires": true, "return": true,
	"struct": true, "switch": true, "true": true, "var": true, "while": true,
	"bool": true, "f16": true, "f32": true, "i32": true, "u32": true,
	"vec2": true, "vec3": true, "vec4": true, "array": true, "ptr": true,
	"mat2x2": true, "mat3x3": true, "mat4x4": true, "sampler": true,
	"texture_2d": true,
}

// validName checks that name can be declared as a shader variable.
func validName(name string) error {
	switch {
	case !identRe.MatchString(name):
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.HasPrefix(name, "bl_"), strings.HasPrefix(name, "__"):
		return fmt.Errorf("%w: %q uses a reserved prefix", ErrInvalidName, name)
	case reservedNames[name]:
		return fmt.Errorf("%w: %q is reserved", ErrInvalidName, name)
	}
	return nil
}

// SynthesizeProgram returns the WGSL module for one step: the preamble,
// one texture binding and accessor pair per input, one uniform binding
// per uniform, a private variable per output, the body verbatim and a
// fragment entry point that writes only the bound outputs.
func SynthesizeProgram(desc *ProgramDescriptor) string {
	var sb strings.Builder
	sb.WriteString(preambleSource)

	if len(desc.Inputs) > 0 {
		sb.WriteString("\n// Inputs.\n")
	}
	for _, in := range desc.Inputs {
		writeInput(&sb, in)
	}

	if len(desc.Uniforms) > 0 {
		sb.WriteString("\n// Uniforms.\n")
	}
	for _, u := range desc.Uniforms {
		fmt.Fprintf(&sb, "@group(0) @binding(%d) var<uniform> %s: %s;\n", u.Binding, u.Name, u.Kind.WGSLType())
	}

	sb.WriteString("\n// Outputs.\n")
	for _, out := range desc.Outputs {
		slot := "unbound"
		if out.Bound() {
			slot = fmt.Sprintf("location %d", out.Slot)
		}
		fmt.Fprintf(&sb, "// %s: %s %s, %s\n", out.Name, out.Format.InternalFormat, out.Format.Precision, slot)
		fmt.Fprintf(&sb, "var<private> %s: %s;\n", out.Name, out.Format.OutputType)
	}

	sb.WriteString("\n")
	sb.WriteString(desc.Body)
	sb.WriteString("\n")

	writeFragmentEntry(&sb, desc.Outputs)
	return sb.String()
}

func writeInput(sb *strings.Builder, in ProgramInput) {
	f := in.Format
	swizzle := [...]string{".x", ".xy", ".xyz", ""}[f.Vector-1]

	fmt.Fprintf(sb, "// %s: %s %s, wrap %s/%s\n", in.Name, f.InternalFormat, f.Precision, in.Wrap.S, in.Wrap.T)
	fmt.Fprintf(sb, "@group(0) @binding(%d) var %s: %s;\n", in.Binding, in.Name, f.InputType)
	fmt.Fprintf(sb, "fn bl_at_%s(coord: vec2<i32>) -> %s {\n", in.Name, f.OutputType)
	fmt.Fprintf(sb, "    let size = vec2<i32>(textureDimensions(%s));\n", in.Name)
	fmt.Fprintf(sb, "    let c = vec2<i32>(bl_Wrap(coord.x, size.x, %du), bl_Wrap(coord.y, size.y, %du));\n",
		in.Wrap.S, in.Wrap.T)
	fmt.Fprintf(sb, "    return textureLoad(%s, c, 0)%s;\n", in.Name, swizzle)
	sb.WriteString("}\n")
	fmt.Fprintf(sb, "fn bl_fetch_%s(id: u32) -> %s {\n", in.Name, f.OutputType)
	fmt.Fprintf(sb, "    return bl_at_%s(bl_Texel(id, textureDimensions(%s).x));\n", in.Name, in.Name)
	sb.WriteString("}\n")
}

func writeFragmentEntry(sb *strings.Builder, outputs []ProgramOutput) {
	sb.WriteString("\nstruct bl_FragmentOut {\n")
	for _, out := range outputs {
		if out.Bound() {
			fmt.Fprintf(sb, "    @location(%d) o%d: %s,\n", out.Slot, out.Slot, out.Format.TexelType)
		}
	}
	sb.WriteString("}\n\n")

	fmt.Fprintf(sb, "@fragment\nfn %s(@builtin(position) position: vec4<f32>) -> bl_FragmentOut {\n", FragmentEntryPoint)
	sb.WriteString("    bl_Position = position.xy;\n")
	sb.WriteString("    main();\n")
	sb.WriteString("    var bl_out: bl_FragmentOut;\n")
	for _, out := range outputs {
		if out.Bound() {
			fmt.Fprintf(sb, "    bl_out.o%d = %s;\n", out.Slot, widen(out.Name, out.Format))
		}
	}
	sb.WriteString("    return bl_out;\n}\n")
}

// widen expands an output variable to the 4-component texel type.
func widen(name string, f FormatDescriptor) string {
	zero := "0.0"
	switch f.Sample {
	case SampleSint:
		zero = "0i"
	case SampleUint:
		zero = "0u"
	}
	switch f.Vector {
	case 1:
		return fmt.Sprintf("%s(%s, %s, %s, %s)", f.TexelType, name, zero, zero, zero)
	case 2:
		return fmt.Sprintf("%s(%s, %s, %s)", f.TexelType, name, zero, zero)
	default:
		return name
	}
}

// readsBeforeWrite reports whether the first use of name in body reads
// it. A use is a write when it is the target of a plain assignment, either
// whole (o = v) or through members and indices (o.x = v, o[1] = v).
// Occurrences after a '.' name a member or swizzle of another value and
// are not uses of name.
func readsBeforeWrite(body, name string) bool {
	src := stripComments(body)
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
	for _, loc := range re.FindAllStringIndex(src, -1) {
		before := strings.TrimRight(src[:loc[0]], " \t\r\n")
		if strings.HasSuffix(before, ".") {
			continue
		}
		rest := skipAccessors(src[loc[1]:])
		return !strings.HasPrefix(rest, "=") || strings.HasPrefix(rest, "==")
	}
	return false
}

// skipAccessors consumes a chain of .member and [index] accessors and
// returns the text after it with leading space trimmed.
func skipAccessors(src string) string {
	for {
		src = strings.TrimLeft(src, " \t\r\n")
		switch {
		case strings.HasPrefix(src, "."):
			rest := strings.TrimLeft(src[1:], " \t\r\n")
			n := len(memberRe.FindString(rest))
			if n == 0 {
				return src
			}
			src = rest[n:]
		case strings.HasPrefix(src, "["):
			depth := 0
			end := -1
			for i, r := range src {
				if r == '[' {
					depth++
				} else if r == ']' {
					depth--
					if depth == 0 {
						end = i
						break
					}
				}
			}
			if end < 0 {
				return src
			}
			src = src[end+1:]
		default:
			return src
		}
	}
}

var memberRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*`)

var commentRe = regexp.MustCompile(`(?s)//[^\n]*|/\*.*?\*/`)

func stripComments(src string) string {
	return commentRe.ReplaceAllString(src, "")
}
