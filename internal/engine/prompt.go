package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cellardex/cellarid/internal/llm"
	"github.com/cellardex/cellarid/internal/model"
)

const identifySystemPrompt = `You are a wine identification expert. Given a description, label photo, or barcode, identify the wine. Respond with exactly one valid JSON object and nothing else:
{"name": <wine name>, "producer": <producer name>, "vintage": <year as number>, "category": <"red"|"white"|"rose"|"sparkling"|"dessert"|"fortified">, "grapes": [<grape varieties>], "confidence": <0-100>}
Use null for any field you cannot determine. The confidence reflects how certain you are of the overall identification, not of individual fields.`

const escalationSystemPrompt = `You are a senior wine authenticator reviewing a junior analyst's identification. Verify it against your knowledge of real producers, labels, and vintages; correct any field that is wrong and fill any that is missing. Respond with exactly one valid JSON object and nothing else:
{"name": <wine name>, "producer": <producer name>, "vintage": <year as number>, "category": <"red"|"white"|"rose"|"sparkling"|"dessert"|"fortified">, "grapes": [<grape varieties>], "confidence": <0-100>}
Use null for any field you cannot determine.`

const textPromptTemplate = `Identify this wine.

Description:
%s%s`

const imagePromptTemplate = `Identify the wine on this label photo.%s`

const barcodePromptTemplate = `Identify the wine with this barcode.

Barcode: %s%s`

const escalationPromptTemplate = `%s

Previous findings (lower tier):
%s

Re-examine the input and the previous findings. Keep fields that are correct, fix fields that are not, and report your own confidence.`

// buildTierPrompt builds the Tier 1 prompt for a request.
func buildTierPrompt(req model.IdentificationRequest, tier model.TierConfig) llm.Prompt {
	p := llm.Prompt{System: identifySystemPrompt}

	extra := ""
	if req.PriorContext != "" {
		extra = fmt.Sprintf("\n\nAdditional context from the user:\n%s", req.PriorContext)
	}

	switch req.Kind {
	case model.InputImage:
		p.User = fmt.Sprintf(imagePromptTemplate, extra)
		p.Image = &llm.Image{MediaType: req.MimeType, Data: req.ImageBytes}
	case model.InputBarcode:
		p.User = fmt.Sprintf(barcodePromptTemplate, req.Text, extra)
	default:
		p.User = fmt.Sprintf(textPromptTemplate, req.Text, extra)
	}

	if hint := effortHint(tier); hint != "" {
		p.System += "\n" + hint
	}
	return p
}

// buildEscalationPrompt primes a more expensive tier with the lower tier's
// candidate so it reviews rather than starts cold.
func buildEscalationPrompt(req model.IdentificationRequest, prior model.Candidate, tier model.TierConfig) llm.Prompt {
	base := buildTierPrompt(req, tier)

	priorJSON, err := json.Marshal(prior)
	if err != nil {
		priorJSON = []byte("{}")
	}

	p := llm.Prompt{
		System: escalationSystemPrompt,
		User:   fmt.Sprintf(escalationPromptTemplate, base.User, priorJSON),
		Image:  base.Image,
	}
	if hint := effortHint(tier); hint != "" {
		p.System += "\n" + hint
	}
	return p
}

func effortHint(tier model.TierConfig) string {
	switch strings.ToLower(tier.Effort) {
	case "high":
		return "Reason step by step through every field before answering; thoroughness matters more than speed here."
	case "medium":
		return "Double-check the producer and vintage before answering."
	default:
		return ""
	}
}
