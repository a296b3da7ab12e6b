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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/payrecon/model"
)

func TestNormalizeReference(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "single trailing dot", in: "ABC123.", want: "ABC123"},
		{name: "many trailing dots", in: "ABC123...", want: "ABC123"},
		{name: "leading dots", in: "..ABC123", want: "ABC123"},
		{name: "case preserved", in: "aBc123.", want: "aBc123"},
		{name: "zero width characters", in: "\u200bABC\u200d123\ufeff", want: "ABC123"},
		{name: "whitespace collapsed", in: "  PP250101 \t 1234  ", want: "PP250101 1234"},
		{name: "dot then space", in: "ABC123 . ", want: "ABC123"},
		{name: "inner dots kept", in: "PP250101.1234.A12345.", want: "PP250101.1234.A12345"},
		{name: "empty", in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeReference(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, NormalizeReference(got), "normalization must be idempotent")
		})
	}
}

func TestExtractReference(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		want     string
		wantType model.ReferenceType
		found    bool
	}{
		{
			name:     "mpesa confirmed keyword",
			text:     "Confirmed ABC12345",
			want:     "ABC12345",
			wantType: model.ReferenceMpesa,
			found:    true,
		},
		{
			name:     "mpesa portuguese keyword",
			text:     "Confirmado CHK3H5PQ2L. Transferiste 50.00MT para 841234567",
			want:     "CHK3H5PQ2L",
			wantType: model.ReferenceMpesa,
			found:    true,
		},
		{
			name:     "mpesa reference label keeps case",
			text:     "Reference: aBc12345xy",
			want:     "aBc12345xy",
			wantType: model.ReferenceMpesa,
			found:    true,
		},
		{
			name:     "mpesa code at line start",
			text:     "QWE12RTY89. Recebeste 100MT",
			want:     "QWE12RTY89",
			wantType: model.ReferenceMpesa,
			found:    true,
		},
		{
			name:     "emola transaction id",
			text:     "ID da transacao: PP250101.1234.A12345. Transferencia efectuada",
			want:     "PP250101.1234.A12345",
			wantType: model.ReferenceEmola,
			found:    true,
		},
		{
			name:     "emola behind reference label falls through network A",
			text:     "Referência: PP250101.1234.B67890",
			want:     "PP250101.1234.B67890",
			wantType: model.ReferenceEmola,
			found:    true,
		},
		{
			name:  "label followed by a plain word",
			text:  "Code: WELCOMEBACK",
			found: false,
		},
		{
			name:  "no reference",
			text:  "bom dia a todos",
			found: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, ok := ExtractReference(tt.text)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.want, ref.Value)
				assert.Equal(t, tt.wantType, ref.Type)
			}
		})
	}
}

func TestExtractConfirmationReferenceFallback(t *testing.T) {
	text := "Transação Concluída Com Sucesso pp1x2y3 ok"
	_, ok := Default().ExtractReference(text)
	require.False(t, ok)

	ref, ok := Default().ExtractConfirmationReference(text)
	require.True(t, ok)
	assert.Equal(t, "pp1x2y3", ref.Value)
	assert.Equal(t, model.ReferenceEmola, ref.Type)

	_, ok = Default().ExtractConfirmationReference("nothing to see here")
	assert.False(t, ok)
}

func TestExtractAmount(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		want  int64
		found bool
	}{
		{name: "labelled", text: "Megas: 2048 MB adicionados", want: 2048, found: true},
		{name: "data size label", text: "Data size 512MB", want: 512, found: true},
		{name: "plain", text: "Reference: ABC12345... 1024 MB...", want: 1024, found: true},
		{name: "implausible then plausible", text: "999999 MB, pacote de 300 MB", want: 300, found: true},
		{name: "zero rejected", text: "0 MB", found: false},
		{name: "upper bound accepted", text: "50000 MB", want: 50000, found: true},
		{name: "above bound rejected", text: "50001 MB", found: false},
		{name: "no unit", text: "1024 megas", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractAmount(tt.text)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromExtractedText(t *testing.T) {
	p := Default()

	_, ok := p.FromExtractedText("NOT_FOUND")
	assert.False(t, ok)
	_, ok = p.FromExtractedText(" nao_encontrada ")
	assert.False(t, ok)
	_, ok = p.FromExtractedText("hello")
	assert.False(t, ok)

	ref, ok := p.FromExtractedText("CHK3H5PQ2L.")
	require.True(t, ok)
	assert.Equal(t, "CHK3H5PQ2L", ref.Value)
	assert.Equal(t, model.ReferenceMpesa, ref.Type)

	ref, ok = p.FromExtractedText("A referência é: Confirmado XYZ98765AB")
	require.True(t, ok)
	assert.Equal(t, "XYZ98765AB", ref.Value)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, model.ReferenceMpesa, Classify("ABC12345"))
	assert.Equal(t, model.ReferenceEmola, Classify("PP250101.1234.A12345"))
	assert.Equal(t, model.ReferenceEmola, Classify("pp12"))
	assert.Equal(t, model.ReferenceUnknown, Classify("ABCDEFGH"))
	assert.Equal(t, model.ReferenceUnknown, Classify("AB1"))
	assert.Equal(t, model.ReferenceUnknown, Classify("ABC 12345"))
}

func TestLoadGrammarFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grammars.yaml")
	doc := `
networks:
  - network: MPESA
    patterns:
      - '(?i)\bpagamento\s+([A-Z0-9]{8,20})\b'
amounts:
  - '(?i)(\d+)\s*MB'
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	p, err := Load(path)
	require.NoError(t, err)

	ref, ok := p.ExtractReference("pagamento ZZ12345678")
	require.True(t, ok)
	assert.Equal(t, "ZZ12345678", ref.Value)

	_, ok = p.ExtractReference("Confirmed ABC12345")
	assert.False(t, ok, "custom grammar replaces the embedded one")
}

func TestParseRejectsBadGrammars(t *testing.T) {
	_, err := Parse([]byte("networks: []"))
	assert.Error(t, err)

	_, err = Parse([]byte("networks:\n  - network: VISA\n    patterns: ['(x)']"))
	assert.ErrorContains(t, err, "unknown network")

	_, err = Parse([]byte("networks:\n  - network: MPESA\n    patterns: ['[a-']"))
	assert.Error(t, err)

	_, err = Parse([]byte("networks:\n  - network: MPESA\n    patterns: ['abc']"))
	assert.ErrorContains(t, err, "no capture group")
}
