package model

// IndexMeta pins a vector collection to the embedding model and dimension it
// was created with. Opening a collection with another model is refused.
type IndexMeta struct {
	Name       string `json:"name"`
	ModelName  string `json:"model_name"`
	Dimensions int    `json:"dimensions"`
	Metric     string `json:"metric"`
	Ctime      int64  `json:"ctime"`
}

// EmbeddingCache is one cached vector, keyed by model, task type and the hash
// of the embedded text.
type EmbeddingCache struct {
	ModelName   string    `json:"model_name"`
	TaskType    string    `json:"task_type"`
	ContentHash string    `json:"content_hash"`
	Embedding   []float32 `json:"embedding"`
	Ctime       int64     `json:"ctime"`
}
