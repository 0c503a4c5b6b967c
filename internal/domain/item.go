package domain

// Item describes one content reference to materialize. Source is either a
// local path (plain or file: URL) or a remote URL.
type Item struct {
	Source    string `json:"source" yaml:"source"`
	Title     string `json:"title,omitempty" yaml:"title,omitempty"`
	MediaType string `json:"media_type,omitempty" yaml:"media_type,omitempty"`
}

// MaterializedItem is an Item resolved to bytes readable from local storage.
type MaterializedItem struct {
	OriginalSource string `json:"original_source"`
	LocalPath      string `json:"local_path"`
	DisplayTitle   string `json:"display_title"`
}
