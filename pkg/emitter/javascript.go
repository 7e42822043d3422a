package emitter

import (
	"encoding/json"
	"fmt"
	"strings"
)

// JavaScript returns the Node.js rendering backend. The emitted file
// is a standalone script built on the global fetch API.
func JavaScript() Backend {
	return javascriptBackend{}
}

type javascriptBackend struct{}

func (javascriptBackend) Name() string { return "javascript" }

func (javascriptBackend) Extension() string { return ".js" }

func (javascriptBackend) Render(plan *Plan) (string, error) {
	var b strings.Builder

	b.WriteString("#!/usr/bin/env node\n")
	fmt.Fprintf(&b, "// Generated: %s\n", plan.GeneratedAt.UTC().Format("2006-01-02"))
	fmt.Fprintf(&b, "// Session: %s\n", plan.SessionID)
	if plan.Prompt != "" {
		fmt.Fprintf(&b, "// Prompt: %s\n", singleLine(plan.Prompt))
	}

	if len(plan.Cookies) > 0 {
		b.WriteString("//\n// Cookie dependencies captured with this workflow:\n")
		for _, cookie := range plan.Cookies {
			fmt.Fprintf(&b, "//   %s = %s\n", cookie.Name, jsString(cookie.Value))
		}
	}

	renderResultTypedef(&b)

	for _, fn := range plan.Functions {
		b.WriteString("\n")
		renderFunction(&b, fn)
	}

	b.WriteString("\n")
	renderMain(&b, plan.Main)
	renderExports(&b, plan.Functions)
	return b.String(), nil
}

// renderResultTypedef declares the record every request function
// returns. Extracted values ride along as additional properties.
func renderResultTypedef(b *strings.Builder) {
	b.WriteString("\n/**\n")
	b.WriteString(" * Result record shared by every request function. Extracted\n")
	b.WriteString(" * values are attached as additional properties.\n")
	b.WriteString(" *\n")
	b.WriteString(" * @typedef {Object} ApiResult\n")
	b.WriteString(" * @property {number} status\n")
	b.WriteString(" * @property {Object<string, string>} headers\n")
	b.WriteString(" */\n")
}

func renderFunction(b *strings.Builder, fn Function) {
	b.WriteString("/** @returns {Promise<ApiResult>} */\n")
	fmt.Fprintf(b, "async function %s(%s) {\n", fn.Name, renderParams(fn.Params))
	fmt.Fprintf(b, "  const response = await fetch(%s, {\n", jsTemplate(fn.Request.URL, true))
	fmt.Fprintf(b, "    method: %s,\n", jsString(fn.Request.Method))
	if len(fn.Request.Headers) > 0 {
		b.WriteString("    headers: {\n")
		for _, header := range fn.Request.Headers {
			fmt.Fprintf(b, "      %s: %s,\n", jsString(header.Name), jsTemplate(header.Value, false))
		}
		b.WriteString("    },\n")
	}
	if fn.Request.Body != nil {
		fmt.Fprintf(b, "    body: %s,\n", jsTemplate(fn.Request.Body.Text, false))
	}
	b.WriteString("  });\n")

	if needsJSON(fn.Extracts) {
		b.WriteString("  const text = await response.text();\n")
		b.WriteString("  let data = null;\n")
		b.WriteString("  try {\n")
		b.WriteString("    data = JSON.parse(text);\n")
		b.WriteString("  } catch {\n")
		b.WriteString("    data = null;\n")
		b.WriteString("  }\n")
	}

	b.WriteString("  const result = {\n")
	b.WriteString("    status: response.status,\n")
	b.WriteString("    headers: Object.fromEntries(response.headers.entries()),\n")
	b.WriteString("  };\n")
	for _, extract := range fn.Extracts {
		line := fmt.Sprintf("  result.%s = %s;", extract.Field, renderExtract(extract))
		if extract.Kind == ExtractLiteral {
			line += " // captured value, source not located"
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("  return result;\n")
	b.WriteString("}\n")
}

func renderParams(params []Param) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		if p.HasDefault {
			parts = append(parts, fmt.Sprintf("%s = %s", p.Name, jsString(p.Default)))
			continue
		}
		parts = append(parts, p.Name)
	}
	return strings.Join(parts, ", ")
}

func renderExtract(extract Extract) string {
	switch extract.Kind {
	case ExtractJSON:
		expr := "data"
		for _, step := range extract.Path {
			if step.IsIndex {
				expr += fmt.Sprintf("?.[%d]", step.Index)
			} else {
				expr += fmt.Sprintf("?.[%s]", jsString(step.Key))
			}
		}
		return expr
	case ExtractHeader:
		return fmt.Sprintf("response.headers.get(%s)", jsString(extract.Header))
	default:
		return jsString(extract.Value)
	}
}

func renderMain(b *strings.Builder, main Main) {
	b.WriteString("async function main() {\n")
	for _, part := range main.Unresolved {
		fmt.Fprintf(b, "  // WARNING: Could not resolve %s\n", part)
		fmt.Fprintf(b, "  throw new Error(%s);\n", jsString("Unresolved dependency: "+part))
	}
	for _, call := range main.Calls {
		args := make([]string, 0, len(call.Args))
		for _, arg := range call.Args {
			if arg.IsLiteral {
				args = append(args, jsString(arg.Literal))
				continue
			}
			args = append(args, arg.FromResult+"."+arg.Field)
		}
		fmt.Fprintf(b, "  const %s = await %s(%s);\n", call.ResultVar, call.Function, strings.Join(args, ", "))
	}
	if main.MasterResult != "" {
		fmt.Fprintf(b, "  return %s;\n", main.MasterResult)
	}
	b.WriteString("}\n")
	b.WriteString("\n")
	b.WriteString("main()\n")
	b.WriteString("  .then((result) => {\n")
	b.WriteString("    console.log(JSON.stringify(result, null, 2));\n")
	b.WriteString("  })\n")
	b.WriteString("  .catch((err) => {\n")
	b.WriteString("    console.error(err);\n")
	b.WriteString("    process.exit(1);\n")
	b.WriteString("  });\n")
}

// renderExports closes the file with a module.exports block so the
// script can also be required as a library.
func renderExports(b *strings.Builder, fns []Function) {
	b.WriteString("\nmodule.exports = {\n")
	b.WriteString("  main,\n")
	for _, fn := range fns {
		fmt.Fprintf(b, "  %s,\n", fn.Name)
	}
	b.WriteString("};\n")
}

func needsJSON(extracts []Extract) bool {
	for _, e := range extracts {
		if e.Kind == ExtractJSON {
			return true
		}
	}
	return false
}

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	encoded, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(encoded)
}

// jsTemplate renders a template as either a plain string literal or a
// template literal with interpolations. encode wraps interpolated
// values in encodeURIComponent for URL contexts.
func jsTemplate(t Template, encode bool) string {
	if t.IsLiteral() {
		return jsString(t.Text())
	}
	var b strings.Builder
	b.WriteString("`")
	for _, seg := range t.Segments {
		if seg.Param != "" {
			if encode {
				b.WriteString("${encodeURIComponent(" + seg.Param + ")}")
			} else {
				b.WriteString("${" + seg.Param + "}")
			}
			continue
		}
		b.WriteString(escapeTemplateLiteral(seg.Literal))
	}
	b.WriteString("`")
	return b.String()
}

func escapeTemplateLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "`", "\\`")
	s = strings.ReplaceAll(s, "${", "\\${")
	return s
}

func singleLine(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.Join(strings.Fields(s), " ")
}
