package stepflow

// ArtifactKind identifies the media type of an artifact.
type ArtifactKind string

// Supported artifact kinds.
const (
	ArtifactImage ArtifactKind = "image"
	ArtifactVideo ArtifactKind = "video"
	ArtifactAudio ArtifactKind = "audio"
	ArtifactFile  ArtifactKind = "file"
)

// Artifact is a media input or output attached to a run: an image, video,
// audio clip, or file. Either URL or Content is set, depending on whether
// the artifact is referenced or inlined.
type Artifact struct {
	ID       string       `json:"id,omitempty"`
	Kind     ArtifactKind `json:"kind"`
	URL      string       `json:"url,omitempty"`
	MIMEType string       `json:"mime_type,omitempty"`
	Content  []byte       `json:"content,omitempty"`
	Name     string       `json:"name,omitempty"`
}

// mergeArtifacts appends src to dst, returning a new slice when dst lacks
// capacity. nil inputs are fine.
func mergeArtifacts(dst, src []Artifact) []Artifact {
	if len(src) == 0 {
		return dst
	}
	out := make([]Artifact, 0, len(dst)+len(src))
	out = append(out, dst...)
	out = append(out, src...)
	return out
}
