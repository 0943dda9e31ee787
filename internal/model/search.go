package model

// DefaultSearchLimit 是未指定 limit 时返回的结果数。
const DefaultSearchLimit = 5

// SearchRequest 是检索接口的请求体。
type SearchRequest struct {
	Text  string `json:"text" binding:"required"`
	Limit *int   `json:"limit"`
}

// EffectiveLimit 返回生效的结果数量。
func (r SearchRequest) EffectiveLimit() int {
	if r.Limit == nil || *r.Limit <= 0 {
		return DefaultSearchLimit
	}
	return *r.Limit
}

// SearchResult 是单页命中结果，FormattedContext 可以直接放进 Prompt。
type SearchResult struct {
	PageNumber       int     `json:"page_number"`
	DocumentHash     string  `json:"document_hash"`
	Filename         string  `json:"filename"`
	Score            float64 `json:"score"`
	Content          string  `json:"content"`
	FormattedContext string  `json:"formatted_context"`
}

// SearchResponse 是检索接口的响应，FullPromptContext 为所有命中上下文块的拼接。
type SearchResponse struct {
	Query             string         `json:"query"`
	Results           []SearchResult `json:"results"`
	FullPromptContext string         `json:"full_prompt_context"`
}

// AskRequest 是问答接口的请求体。
type AskRequest struct {
	Question string `json:"question" binding:"required"`
	Limit    *int   `json:"limit"`
}
