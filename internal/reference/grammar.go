/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package reference

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/blnkfinance/payrecon/model"
)

//go:embed grammars.yaml
var defaultGrammars []byte

// DefaultMaxAmount is the largest quantity (in MB) accepted from a message.
const DefaultMaxAmount = 50000

// Grammar is the ordered list of patterns of one payment network together
// with the validator every capture must satisfy.
type Grammar struct {
	Network  model.ReferenceType
	Patterns []*regexp.Regexp
	Validate func(string) bool
}

type grammarFile struct {
	Networks []struct {
		Network  string   `yaml:"network"`
		Patterns []string `yaml:"patterns"`
	} `yaml:"networks"`
	Amounts   []string `yaml:"amounts"`
	Fallbacks []string `yaml:"fallbacks"`
}

var validators = map[model.ReferenceType]func(string) bool{
	model.ReferenceMpesa: IsMpesaReference,
	model.ReferenceEmola: IsEmolaReference,
}

// Load reads a grammar file from disk. An empty path returns the embedded grammars.
func Load(path string) (*Parser, error) {
	if path == "" {
		return Parse(defaultGrammars)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading grammar file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse compiles a YAML grammar document into a Parser.
func Parse(data []byte) (*Parser, error) {
	var file grammarFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decoding grammars: %w", err)
	}
	if len(file.Networks) == 0 {
		return nil, fmt.Errorf("grammar file declares no networks")
	}

	p := &Parser{maxAmount: DefaultMaxAmount}
	for _, n := range file.Networks {
		network := model.ReferenceType(n.Network)
		validate, ok := validators[network]
		if !ok {
			return nil, fmt.Errorf("unknown network %q", n.Network)
		}
		patterns, err := compileAll(n.Patterns, true)
		if err != nil {
			return nil, fmt.Errorf("network %s: %w", n.Network, err)
		}
		p.grammars = append(p.grammars, Grammar{Network: network, Patterns: patterns, Validate: validate})
	}

	var err error
	if p.amounts, err = compileAll(file.Amounts, true); err != nil {
		return nil, fmt.Errorf("amounts: %w", err)
	}
	if p.fallbacks, err = compileAll(file.Fallbacks, false); err != nil {
		return nil, fmt.Errorf("fallbacks: %w", err)
	}
	return p, nil
}

func compileAll(exprs []string, needsGroup bool) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compiling %q: %w", expr, err)
		}
		if needsGroup && re.NumSubexp() < 1 {
			return nil, fmt.Errorf("pattern %q has no capture group", expr)
		}
		out = append(out, re)
	}
	return out, nil
}
