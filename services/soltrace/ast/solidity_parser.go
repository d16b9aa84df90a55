// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// SolidityParser extracts declarations from Solidity source text.
//
// Description:
//
//	The parser is pattern-based rather than grammar-based: it recognizes
//	function, modifier, event, and state-variable declarations with regular
//	expressions and balances braces to delimit bodies. Downstream
//	components (interface call detection in particular) operate
//	on raw source text anyway, and a pattern front-end degrades gracefully
//	on files that a strict grammar would reject outright.
//
// Limitations:
//
//   - No semantic analysis; types are recorded as written.
//   - Assembly blocks and string literals containing braces can skew body
//     boundaries on pathological input.
//
// Thread Safety: Stateless; safe for concurrent use.
type SolidityParser struct{}

// NewSolidityParser creates a Solidity parser.
func NewSolidityParser() *SolidityParser {
	return &SolidityParser{}
}

// Language returns "solidity".
func (p *SolidityParser) Language() string { return "solidity" }

// Extensions returns the handled file extensions.
func (p *SolidityParser) Extensions() []string { return []string{".sol"} }

var (
	importRe = regexp.MustCompile(`(?m)^\s*import\s+(?:[^"']*?from\s+)?["']([^"']+)["']\s*;`)

	functionRe = regexp.MustCompile(`(?m)\bfunction\s+([a-zA-Z_]\w*)\s*\(`)

	constructorRe = regexp.MustCompile(`(?m)\bconstructor\s*\(`)

	modifierRe = regexp.MustCompile(`(?m)\bmodifier\s+([a-zA-Z_]\w*)\s*(\()?`)

	eventRe = regexp.MustCompile(`(?m)\bevent\s+([a-zA-Z_]\w*)\s*\(([^)]*)\)\s*;`)

	// stateVarRe matches contract-level variable declarations after function
	// and modifier bodies have been blanked out.
	stateVarRe = regexp.MustCompile(`(?m)^\s*((?:mapping\s*\([^;]+?\)|[a-zA-Z_][\w\[\]]*)(?:\s+(?:public|private|internal|constant|immutable|override))*)\s+([a-zA-Z_]\w*)\s*(?:=[^;]*)?;`)

	visibilityRe = regexp.MustCompile(`\b(public|external|internal|private)\b`)
	mutabilityRe = regexp.MustCompile(`\b(view|pure|payable)\b`)

	callSiteRe = regexp.MustCompile(`(^|[^\w.])([a-zA-Z_]\w*)\s*\(`)
)

// callKeywords are identifiers that look like bare calls but never are, or
// that are language builtins rather than contract members.
var callKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "do": true, "switch": true,
	"return": true, "returns": true, "require": true, "assert": true,
	"revert": true, "emit": true, "new": true, "delete": true,
	"function": true, "modifier": true, "constructor": true, "receive": true,
	"fallback": true, "keccak256": true, "sha256": true, "ripemd160": true,
	"ecrecover": true, "addmod": true, "mulmod": true, "selfdestruct": true,
	"payable": true, "unchecked": true, "assembly": true, "type": true,
}

// Parse extracts entities and import references from Solidity source.
//
// Outputs:
//
//	*ParseResult - entities and imports found in the file.
//	error        - *ParseError when the content is not valid UTF-8 or
//	               contains no recognizable Solidity construct at all.
func (p *SolidityParser) Parse(ctx context.Context, content string, filePath string) (*ParseResult, error) {
	if !utf8.ValidString(content) {
		return nil, &ParseError{FilePath: filePath, Reason: "content is not valid UTF-8"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clean := stripComments(content)

	result := &ParseResult{FilePath: filePath}

	for _, m := range importRe.FindAllStringSubmatch(clean, -1) {
		result.Imports = append(result.Imports, ImportReference{
			RawPath:    m[1],
			OriginFile: filePath,
		})
	}

	bodyless := p.extractFunctions(clean, filePath, result)
	p.extractModifiers(clean, filePath, result)
	p.extractEvents(clean, filePath, result)
	p.extractStateVariables(bodyless, filePath, result)

	if len(result.Entities) == 0 && len(result.Imports) == 0 &&
		!strings.Contains(clean, "pragma") && !strings.Contains(clean, "contract") &&
		!strings.Contains(clean, "interface") && !strings.Contains(clean, "library") {
		return nil, &ParseError{FilePath: filePath, Reason: "no Solidity constructs recognized"}
	}

	return result, nil
}

// extractFunctions appends function (and constructor) entities and returns
// the source with every extracted body blanked, so the state-variable scan
// does not pick up locals.
func (p *SolidityParser) extractFunctions(src, filePath string, result *ParseResult) string {
	bodyless := []byte(src)

	appendFn := func(name string, headStart, parenOpen int) {
		params, parenClose := parseParameterList(src, parenOpen)
		if parenClose < 0 {
			return
		}

		// The header runs from the close paren up to the body brace or the
		// terminating semicolon (interface-style declaration).
		headerEnd, bodyStart := findDeclarationEnd(src, parenClose+1)
		header := src[parenClose+1 : headerEnd]

		entity := &Entity{
			Kind:            EntityKindFunction,
			Name:            name,
			Signature:       MakeSignature(name, params),
			File:            filePath,
			Visibility:      firstMatch(visibilityRe, header),
			StateMutability: firstMatch(mutabilityRe, header),
			Parameters:      params,
			StartLine:       lineAt(src, headStart),
		}

		if bodyStart >= 0 {
			bodyEnd := matchBrace(src, bodyStart)
			if bodyEnd < 0 {
				bodyEnd = len(src) - 1
			}
			entity.EndLine = lineAt(src, bodyEnd)
			entity.RawSource = src[headStart : bodyEnd+1]
			entity.Calls = extractCallSites(src[bodyStart:bodyEnd+1], lineAt(src, bodyStart))
			for i := bodyStart; i <= bodyEnd && i < len(bodyless); i++ {
				if bodyless[i] != '\n' {
					bodyless[i] = ' '
				}
			}
		} else {
			entity.EndLine = lineAt(src, headerEnd)
		}

		result.Entities = append(result.Entities, entity)
	}

	for _, m := range functionRe.FindAllStringSubmatchIndex(src, -1) {
		name := src[m[2]:m[3]]
		appendFn(name, m[0], m[1]-1)
	}
	for _, m := range constructorRe.FindAllStringIndex(src, -1) {
		appendFn("constructor", m[0], m[1]-1)
	}

	return string(bodyless)
}

func (p *SolidityParser) extractModifiers(src, filePath string, result *ParseResult) {
	for _, m := range modifierRe.FindAllStringSubmatchIndex(src, -1) {
		name := src[m[2]:m[3]]

		var params []Parameter
		searchFrom := m[3]
		if m[4] >= 0 { // parenthesized parameter list present
			var parenClose int
			params, parenClose = parseParameterList(src, m[5]-1)
			if parenClose < 0 {
				continue
			}
			searchFrom = parenClose + 1
		}

		_, bodyStart := findDeclarationEnd(src, searchFrom)
		entity := &Entity{
			Kind:       EntityKindModifier,
			Name:       name,
			Signature:  MakeSignature(name, params),
			File:       filePath,
			Parameters: params,
			StartLine:  lineAt(src, m[0]),
		}
		if bodyStart >= 0 {
			bodyEnd := matchBrace(src, bodyStart)
			if bodyEnd < 0 {
				bodyEnd = len(src) - 1
			}
			entity.EndLine = lineAt(src, bodyEnd)
			entity.RawSource = src[m[0] : bodyEnd+1]
			entity.Calls = extractCallSites(src[bodyStart:bodyEnd+1], lineAt(src, bodyStart))
		}
		result.Entities = append(result.Entities, entity)
	}
}

func (p *SolidityParser) extractEvents(src, filePath string, result *ParseResult) {
	for _, m := range eventRe.FindAllStringSubmatchIndex(src, -1) {
		name := src[m[2]:m[3]]
		parenOpen := m[3] + strings.IndexByte(src[m[3]:], '(')
		params, _ := parseParameterList(src, parenOpen)
		result.Entities = append(result.Entities, &Entity{
			Kind:       EntityKindEvent,
			Name:       name,
			Signature:  MakeSignature(name, params),
			File:       filePath,
			Parameters: params,
			StartLine:  lineAt(src, m[0]),
			EndLine:    lineAt(src, m[1]),
		})
	}
}

// extractStateVariables scans body-blanked source for contract-level
// variable declarations.
func (p *SolidityParser) extractStateVariables(bodyless, filePath string, result *ParseResult) {
	for _, m := range stateVarRe.FindAllStringSubmatchIndex(bodyless, -1) {
		head := bodyless[m[2]:m[3]]
		name := bodyless[m[4]:m[5]]

		// Reject lines that are actually other declarations or directives.
		firstWord := strings.Fields(head)[0]
		switch firstWord {
		case "pragma", "import", "contract", "interface", "library", "using",
			"function", "modifier", "event", "enum", "struct", "emit", "return":
			continue
		}

		typeStr := strings.Fields(head)[0]
		if strings.HasPrefix(head, "mapping") {
			if idx := strings.LastIndex(head, ")"); idx >= 0 {
				typeStr = strings.Join(strings.Fields(head[:idx+1]), " ")
			}
		}

		result.Entities = append(result.Entities, &Entity{
			Kind:       EntityKindStateVariable,
			Name:       name,
			Signature:  name,
			File:       filePath,
			Visibility: firstMatch(visibilityRe, head),
			Parameters: []Parameter{{Name: name, Type: typeStr}},
			StartLine:  lineAt(bodyless, m[0]),
			EndLine:    lineAt(bodyless, m[1]),
		})
	}
}

// parseParameterList parses a parenthesized parameter list starting at the
// opening paren offset. Returns the parameters and the offset of the closing
// paren (-1 when unbalanced).
func parseParameterList(src string, parenOpen int) ([]Parameter, int) {
	if parenOpen < 0 || parenOpen >= len(src) || src[parenOpen] != '(' {
		return nil, -1
	}
	depth := 0
	end := -1
	for i := parenOpen; i < len(src); i++ {
		switch src[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				end = i
			}
		}
		if end >= 0 {
			break
		}
	}
	if end < 0 {
		return nil, -1
	}

	inner := src[parenOpen+1 : end]
	var params []Parameter
	for _, part := range splitTopLevel(inner) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		params = append(params, parseParameter(part))
	}
	return params, end
}

// parseParameter parses a single declared parameter: "type [location]
// [indexed] [name]". The type may itself contain parentheses (mapping types)
// or brackets (arrays).
func parseParameter(decl string) Parameter {
	fields := strings.Fields(decl)
	p := Parameter{Type: fields[0]}

	// mapping(...) types may have been split on spaces; rejoin them.
	if strings.HasPrefix(fields[0], "mapping") {
		if idx := strings.LastIndex(decl, ")"); idx >= 0 {
			p.Type = strings.Join(strings.Fields(decl[:idx+1]), " ")
			fields = append([]string{p.Type}, strings.Fields(decl[idx+1:])...)
		}
	}

	for _, f := range fields[1:] {
		switch f {
		case "memory", "storage", "calldata", "payable":
			// data location / mutability, not part of identity
		case "indexed":
			p.Indexed = true
		default:
			p.Name = f
		}
	}
	return p
}

// extractCallSites finds bare call sites in a body. Member calls through a
// receiver and capitalized names (contract-type casts, event names) are
// skipped; the interface call detector owns those.
func extractCallSites(body string, startLine int) []Call {
	var calls []Call
	for _, m := range callSiteRe.FindAllStringSubmatchIndex(body, -1) {
		name := body[m[4]:m[5]]
		if callKeywords[name] || isElementaryType(name) {
			continue
		}
		r, _ := utf8.DecodeRuneInString(name)
		if unicode.IsUpper(r) {
			continue
		}
		argCount := countArguments(body, m[1]-1)
		calls = append(calls, Call{
			Name:     name,
			ArgCount: argCount,
			Line:     startLine + strings.Count(body[:m[4]], "\n"),
		})
	}
	return calls
}

// CountCallArguments counts the top-level arguments of the call whose open
// paren is at or after the given offset. Returns 0 for an empty list.
func CountCallArguments(src string, parenOpen int) int {
	return countArguments(src, parenOpen)
}

// countArguments counts top-level arguments in the call parens opening at
// the given offset. Returns 0 for an empty argument list.
func countArguments(src string, parenOpen int) int {
	for parenOpen < len(src) && src[parenOpen] != '(' {
		parenOpen++
	}
	if parenOpen >= len(src) {
		return 0
	}
	depth := 0
	count := 0
	sawContent := false
	for i := parenOpen; i < len(src); i++ {
		switch src[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
			if depth == 0 {
				if sawContent {
					count++
				}
				return count
			}
		case ',':
			if depth == 1 {
				count++
			}
		default:
			if depth == 1 && !unicode.IsSpace(rune(src[i])) {
				sawContent = true
			}
		}
	}
	return count
}

// findDeclarationEnd scans forward from offset for the declaration header's
// end: the opening body brace or the terminating semicolon. Returns the
// header end offset and the brace offset (-1 when the declaration has no
// body).
func findDeclarationEnd(src string, from int) (headerEnd, bodyStart int) {
	for i := from; i < len(src); i++ {
		switch src[i] {
		case '{':
			return i, i
		case ';':
			return i, -1
		}
	}
	return len(src), -1
}

// matchBrace returns the offset of the brace closing the one at open,
// or -1 when unbalanced.
func matchBrace(src string, open int) int {
	depth := 0
	for i := open; i < len(src); i++ {
		switch src[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTopLevel splits on commas not nested in parentheses or brackets.
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	last := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[last:i])
				last = i + 1
			}
		}
	}
	parts = append(parts, s[last:])
	return parts
}

// stripComments blanks out line and block comments, preserving newlines so
// line numbers stay stable.
func stripComments(src string) string {
	out := []byte(src)
	i := 0
	for i < len(out)-1 {
		switch {
		case out[i] == '/' && out[i+1] == '/':
			for i < len(out) && out[i] != '\n' {
				out[i] = ' '
				i++
			}
		case out[i] == '/' && out[i+1] == '*':
			for i < len(out)-1 && !(out[i] == '*' && out[i+1] == '/') {
				if out[i] != '\n' {
					out[i] = ' '
				}
				i++
			}
			if i < len(out)-1 {
				out[i] = ' '
				out[i+1] = ' '
				i += 2
			}
		default:
			i++
		}
	}
	return string(out)
}

var elementaryTypeRe = regexp.MustCompile(`^(uint\d*|int\d*|bytes\d*|address|bool|string)$`)

// isElementaryType reports whether name is an elementary Solidity type,
// which at a call site is a type cast rather than a call.
func isElementaryType(name string) bool {
	return elementaryTypeRe.MatchString(name)
}

// firstMatch returns the first capture of re in s, or "".
func firstMatch(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

// lineAt returns the 1-based line number of byte offset off.
func lineAt(src string, off int) int {
	if off > len(src) {
		off = len(src)
	}
	return 1 + strings.Count(src[:off], "\n")
}
