package adapter

// Fixed processing configuration sent with every parse task: 1024-token
// chunks measured with the cl100k_base tokenizer, high-resolution OCR,
// layout-analysis segmentation, and per-segment-type rendering rules.
// Tables and formulas get LLM-generated renderings with surrounding
// context; everything else renders automatically.

type chunkProcessing struct {
	IgnoreHeadersAndFooters bool   `json:"ignore_headers_and_footers"`
	TargetLength            int    `json:"target_length"`
	Tokenizer               string `json:"tokenizer"`
}

type generationConfig struct {
	CropImage       string   `json:"crop_image"`
	HTML            string   `json:"html"`
	LLM             *string  `json:"llm"`
	Markdown        string   `json:"markdown"`
	EmbedSources    []string `json:"embed_sources"`
	ExtendedContext bool     `json:"extended_context"`
}

type segmentProcessing struct {
	Title         generationConfig `json:"Title"`
	SectionHeader generationConfig `json:"SectionHeader"`
	Text          generationConfig `json:"Text"`
	ListItem      generationConfig `json:"ListItem"`
	Table         generationConfig `json:"Table"`
	Picture       generationConfig `json:"Picture"`
	Caption       generationConfig `json:"Caption"`
	Formula       generationConfig `json:"Formula"`
	Footnote      generationConfig `json:"Footnote"`
	PageHeader    generationConfig `json:"PageHeader"`
	PageFooter    generationConfig `json:"PageFooter"`
	Page          generationConfig `json:"Page"`
}

type llmProcessing struct {
	ModelID          string `json:"model_id"`
	FallbackStrategy string `json:"fallback_strategy"`
}

type parseConfiguration struct {
	ChunkProcessing      chunkProcessing   `json:"chunk_processing"`
	HighResolution       bool              `json:"high_resolution"`
	OCRStrategy          string            `json:"ocr_strategy"`
	SegmentProcessing    segmentProcessing `json:"segment_processing"`
	SegmentationStrategy string            `json:"segmentation_strategy"`
	Pipeline             string            `json:"pipeline"`
	ErrorHandling        string            `json:"error_handling"`
	LLMProcessing        llmProcessing     `json:"llm_processing"`
}

const tableSummaryPrompt = "Summarize the key information in this table including any context from legends or surrounding text"

// autoConfig renders a segment type without LLM involvement. Cropping is
// "All" for content segments and "Auto" for page furniture.
func autoConfig(cropAll bool) generationConfig {
	crop := "Auto"
	if cropAll {
		crop = "All"
	}
	return generationConfig{
		CropImage:    crop,
		HTML:         "Auto",
		Markdown:     "Auto",
		EmbedSources: []string{"Markdown"},
	}
}

// llmConfig renders a segment type with the LLM, keeping surrounding
// context in the prompt.
func llmConfig(prompt *string, embedSources ...string) generationConfig {
	return generationConfig{
		CropImage:       "All",
		HTML:            "LLM",
		LLM:             prompt,
		Markdown:        "LLM",
		EmbedSources:    embedSources,
		ExtendedContext: true,
	}
}

func defaultParseConfiguration() parseConfiguration {
	summary := tableSummaryPrompt
	return parseConfiguration{
		ChunkProcessing: chunkProcessing{
			IgnoreHeadersAndFooters: true,
			TargetLength:            1024,
			Tokenizer:               "Cl100kBase",
		},
		HighResolution: true,
		OCRStrategy:    "Auto",
		SegmentProcessing: segmentProcessing{
			Title:         autoConfig(true),
			SectionHeader: autoConfig(true),
			Text:          autoConfig(true),
			ListItem:      autoConfig(true),
			Table:         llmConfig(&summary, "LLM", "Markdown"),
			Picture:       llmConfig(nil, "Markdown"),
			Caption:       autoConfig(true),
			Formula:       llmConfig(nil, "Markdown"),
			Footnote:      autoConfig(false),
			PageHeader:    autoConfig(false),
			PageFooter:    autoConfig(false),
			Page:          llmConfig(nil, "Markdown"),
		},
		SegmentationStrategy: "LayoutAnalysis",
		Pipeline:             "Azure",
		ErrorHandling:        "Fail",
		LLMProcessing: llmProcessing{
			ModelID:          "gemini-pro-1.5",
			FallbackStrategy: "Default",
		},
	}
}
