package models

// QueryOutput is the result of a cached query.
type QueryOutput struct {
	RequestID     string           `json:"request_id"`
	Modality      string           `json:"modality"`
	Text          string           `json:"text"`
	IsHit         bool             `json:"is_hit"`
	BestCandidate *EmbeddingRecord `json:"best_candidate,omitempty"`
	TextScore     float64          `json:"text_score,omitempty"`
	ImageScore    float64          `json:"image_score,omitempty"`
	QueryTime     int64            `json:"query_time_ms"`
}

// SearchResponse is the response for a raw similarity search.
type SearchResponse struct {
	Modality string             `json:"modality"`
	Records  []*EmbeddingRecord `json:"records"`
	Total    int                `json:"total"`
}

// StoreResponse is the response for a record insertion.
type StoreResponse struct {
	Modality string `json:"modality"`
	ID       int64  `json:"id"`
}

// ModalityStats describes the current state of one modality.
type ModalityStats struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Namespace   string `json:"namespace"`
	Dimension   int    `json:"dimension"`
	IndexType   string `json:"index_type"`
	Count       int    `json:"count"`
	Capacity    int    `json:"capacity"`
	NextID      int64  `json:"next_id"`
	Initialized bool   `json:"initialized"`
}

// StatusResponse is the response for the status endpoint.
type StatusResponse struct {
	Store      string          `json:"store"`
	DiskBytes  int64           `json:"disk_bytes,omitempty"`
	TopK       int             `json:"top_k"`
	Threshold  float64         `json:"similarity_threshold"`
	Modalities []ModalityStats `json:"modalities"`
}
