package conformance

import (
	"github.com/gabriel-vasile/mimetype"
)

// Fixture is a single (key, content) pair driven through the battery.
type Fixture struct {
	Key     string
	Content []byte
}

// ContentType sniffs the content type of the fixture body.
func (f Fixture) ContentType() string {
	return mimetype.Detect(f.Content).String()
}

// DefaultFixtures returns the battery's fixture objects. Order matters:
// cases are recorded in fixture order, and folder/test3.txt is the only
// key the prefixed LIST case should match.
func DefaultFixtures() []Fixture {
	return []Fixture{
		{Key: "test1.txt", Content: []byte("Hello, s3check! This is test object 1.")},
		{Key: "test2.txt", Content: []byte("Hello, s3check! This is test object 2 with some content.")},
		{Key: "folder/test3.txt", Content: []byte("Hello, s3check! This is a nested object.")},
	}
}
