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

// Package ocr reads payment references out of receipt screenshots with a
// vision model.
package ocr

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/blnkfinance/payrecon/config"
)

// NotFound is the answer the model gives when the image holds no reference.
const NotFound = "NAO_ENCONTRADA"

// Prompt asks the model for the transaction reference only.
const Prompt = "Extrai apenas a referência da transação desta imagem. " +
	"M-Pesa: código após 'Confirmado'. eMola: código após 'ID da transacao:'. " +
	"Responde apenas com a referência ou '" + NotFound + "'."

const maxAnswerTokens = 50

// Extractor returns the text a model reads from an image.
type Extractor interface {
	ExtractText(ctx context.Context, image []byte, mimeType string) (string, error)
}

// New builds the extractor selected by cfg.Provider. An empty provider
// disables image recognition and returns nil.
func New(ctx context.Context, cfg config.OCRConfig) (Extractor, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "openai":
		return NewOpenAI(cfg.ApiKey, cfg.Model, cfg.BaseURL), nil
	case "gemini":
		g, err := NewGemini(ctx, cfg.ApiKey, cfg.Model, cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown OCR provider %q", cfg.Provider)
	}
}

func dataURL(image []byte, mimeType string) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)
}

func clean(answer string) string {
	return strings.Trim(strings.TrimSpace(answer), "`\"'")
}
