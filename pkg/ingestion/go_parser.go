// Copyright 2026 The Scopegraph Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// SPDX-License-Identifier: Apache-2.0

package ingestion

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/scopegraph/scopegraph/pkg/kind"
)

// GoParser is the reference ParserAdapter implementation (§ Non-goals:
// the only concrete parser this module ships). It extracts function,
// method, struct, and interface scopes from Go source using tree-sitter,
// the same library and AST-walking approach scopegraph's lineage has
// always used for Go.
type GoParser struct {
	language *sitter.Language
}

// NewGoParser constructs a GoParser.
func NewGoParser() *GoParser {
	return &GoParser{language: golang.GetLanguage()}
}

func (p *GoParser) Languages() []string { return []string{"go"} }

func (p *GoParser) ParseFile(path string, content []byte) (*FileParseResult, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(p.language)

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, kind.Wrap(kind.ParseError, "tree-sitter parse failed for "+path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	imports := extractGoImports(root, content)

	var scopes []ScopeInfo
	walkGoNode(root, content, "", &scopes)

	return &FileParseResult{Language: "go", Scopes: scopes, Imports: imports}, nil
}

func extractGoImports(root *sitter.Node, content []byte) []ImportInfo {
	var imports []ImportInfo
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.Type() == "import_spec" {
			var path, alias string
			if p := n.ChildByFieldName("path"); p != nil {
				path = strings.Trim(text(content, p), `"`)
			}
			if n2 := n.ChildByFieldName("name"); n2 != nil {
				alias = text(content, n2)
			}
			if path != "" {
				imports = append(imports, ImportInfo{Path: path, Alias: alias, Line: int(n.StartPoint().Row) + 1})
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return imports
}

// walkGoNode recursively finds function_declaration, method_declaration,
// type_declaration (struct and interface) nodes and appends a ScopeInfo
// for each, threading parentName down for nested func_literal scopes.
func walkGoNode(n *sitter.Node, content []byte, parentName string, out *[]ScopeInfo) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "function_declaration":
		if s := extractGoFunc(n, content, parentName, "function"); s != nil {
			*out = append(*out, *s)
			parentName = s.Name
		}
	case "method_declaration":
		if s := extractGoMethod(n, content, parentName); s != nil {
			*out = append(*out, *s)
			parentName = s.Name
		}
	case "type_declaration":
		for _, s := range extractGoTypeDecl(n, content, parentName) {
			*out = append(*out, s)
		}
	case "func_literal":
		if s := extractGoFuncLiteral(n, content, parentName); s != nil {
			*out = append(*out, *s)
			parentName = s.Name
		}
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		walkGoNode(n.Child(i), content, parentName, out)
	}
}

func extractGoFunc(n *sitter.Node, content []byte, parent, kindName string) *ScopeInfo {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := text(content, nameNode)
	body := n.ChildByFieldName("body")
	return &ScopeInfo{
		Name:       name,
		Kind:       kindName,
		Signature:  functionSignature(n, content, ""),
		StartLine:  int(n.StartPoint().Row) + 1,
		EndLine:    int(n.EndPoint().Row) + 1,
		StartCol:   int(n.StartPoint().Column),
		EndCol:     int(n.EndPoint().Column),
		Content:    text(content, n),
		Exported:   isExported(name),
		ParentName: parent,
		References: extractGoReferences(body, content),
	}
}

func extractGoMethod(n *sitter.Node, content []byte, parent string) *ScopeInfo {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := text(content, nameNode)
	receiver := ""
	if r := n.ChildByFieldName("receiver"); r != nil {
		receiver = text(content, r)
	}
	body := n.ChildByFieldName("body")
	return &ScopeInfo{
		Name:       name,
		Kind:       "method",
		Signature:  functionSignature(n, content, receiver),
		StartLine:  int(n.StartPoint().Row) + 1,
		EndLine:    int(n.EndPoint().Row) + 1,
		StartCol:   int(n.StartPoint().Column),
		EndCol:     int(n.EndPoint().Column),
		Content:    text(content, n),
		Exported:   isExported(name),
		ParentName: parent,
		References: extractGoReferences(body, content),
	}
}

var anonCounter int

func extractGoFuncLiteral(n *sitter.Node, content []byte, parent string) *ScopeInfo {
	anonCounter++
	name := fmt.Sprintf("closure#%d", anonCounter)
	body := n.ChildByFieldName("body")
	return &ScopeInfo{
		Name:       name,
		Kind:       "closure",
		Signature:  functionSignature(n, content, ""),
		StartLine:  int(n.StartPoint().Row) + 1,
		EndLine:    int(n.EndPoint().Row) + 1,
		StartCol:   int(n.StartPoint().Column),
		EndCol:     int(n.EndPoint().Column),
		Content:    text(content, n),
		Exported:   false,
		ParentName: parent,
		References: extractGoReferences(body, content),
	}
}

func extractGoTypeDecl(n *sitter.Node, content []byte, parent string) []ScopeInfo {
	var out []ScopeInfo
	for i := 0; i < int(n.ChildCount()); i++ {
		spec := n.Child(i)
		if spec.Type() != "type_spec" {
			continue
		}
		nameNode := spec.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		name := text(content, nameNode)
		typeNode := spec.ChildByFieldName("type")
		scopeKind := "type"
		var extends, implements []string
		if typeNode != nil && typeNode.Type() == "interface_type" {
			scopeKind = "interface"
			extends = extractEmbeddedNames(typeNode, content)
		} else if typeNode != nil && typeNode.Type() == "struct_type" {
			implements = extractEmbeddedNames(typeNode, content)
		}
		out = append(out, ScopeInfo{
			Name:       name,
			Kind:       scopeKind,
			Signature:  "type " + name,
			StartLine:  int(spec.StartPoint().Row) + 1,
			EndLine:    int(spec.EndPoint().Row) + 1,
			StartCol:   int(spec.StartPoint().Column),
			EndCol:     int(spec.EndPoint().Column),
			Content:    text(content, spec),
			Exported:   isExported(name),
			ParentName: parent,
			Extends:    extends,
			Implements: implements,
		})
	}
	return out
}

// extractEmbeddedNames finds embedded-field/embedded-interface type
// names within a struct_type or interface_type body, used to detect
// cross-file inheritance (embeds) per the spec's "extends"/"implements"
// keyword detection requirement — Go expresses both via embedding, so
// scopegraph treats an embedded interface within an interface body as
// "extends" and an embedded type within a struct body as a candidate
// "implements" (the executor emits IMPLEMENTS only when the embedded name
// resolves to an interface scope).
func extractEmbeddedNames(typeNode *sitter.Node, content []byte) []string {
	var names []string
	for i := 0; i < int(typeNode.ChildCount()); i++ {
		child := typeNode.Child(i)
		switch child.Type() {
		case "field_declaration":
			if child.ChildByFieldName("name") == nil {
				if t := child.ChildByFieldName("type"); t != nil {
					names = append(names, strings.TrimPrefix(text(content, t), "*"))
				}
			}
		case "type_identifier", "qualified_type":
			names = append(names, text(content, child))
		}
	}
	return names
}

// extractGoReferences collects the callee of every call expression within
// a function body as RawReference values (other identifier uses are not
// collected); resolution of each into local_scope/import/
// external happens in the reference resolver (C3), not here.
func extractGoReferences(body *sitter.Node, content []byte) []RawReference {
	if body == nil {
		return nil
	}
	var refs []RawReference
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.Type() == "call_expression" {
			if fn := n.ChildByFieldName("function"); fn != nil {
				refs = append(refs, RawReference{
					Name:    text(content, fn),
					Line:    int(fn.StartPoint().Row) + 1,
					Column:  int(fn.StartPoint().Column),
					Context: truncate(text(content, n), 200),
				})
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(body)
	return refs
}

func functionSignature(n *sitter.Node, content []byte, receiver string) string {
	name := ""
	if nn := n.ChildByFieldName("name"); nn != nil {
		name = text(content, nn)
	}
	params := ""
	if pn := n.ChildByFieldName("parameters"); pn != nil {
		params = text(content, pn)
	}
	result := ""
	if rn := n.ChildByFieldName("result"); rn != nil {
		result = " " + text(content, rn)
	}
	if receiver != "" {
		return fmt.Sprintf("func %s %s%s%s", receiver, name, params, result)
	}
	return fmt.Sprintf("func %s%s%s", name, params, result)
}

func text(content []byte, n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(content[n.StartByte():n.EndByte()])
}

func isExported(name string) bool {
	return len(name) > 0 && name[0] >= 'A' && name[0] <= 'Z'
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
