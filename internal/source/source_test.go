package source

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"testing"

	"github.com/spf13/afero"
)

func TestFileIdentifierEquality(t *testing.T) {
	a := FileIdentifier("/tmp/foo.go")
	b := FileIdentifier("/tmp/foo.go")
	if a != b {
		t.Fatalf("expected equal identifiers, got %+v vs %+v", a, b)
	}
}

func TestContentReadsFromMemFs(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/tmp/loop.js", []byte("for(;;){}"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s := New(FileIdentifier("/tmp/loop.js"), Descriptor{Path: "/tmp/loop.js"}, fs, nil, nil)
	content, err := s.Content(context.Background())
	if err != nil {
		t.Fatalf("Content: %v", err)
	}
	if string(content) != "for(;;){}" {
		t.Fatalf("unexpected content: %s", content)
	}
}

func TestContentFetchesVirtualSource(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context, ref int) ([]byte, error) {
		calls++
		return []byte("virtual body"), nil
	}
	s := New(VirtualIdentifier(1, 42, ""), Descriptor{SourceReference: 42}, nil, fetch, nil)

	for i := 0; i < 2; i++ {
		content, err := s.Content(context.Background())
		if err != nil {
			t.Fatalf("Content: %v", err)
		}
		if string(content) != "virtual body" {
			t.Fatalf("unexpected content: %s", content)
		}
	}
	if calls != 1 {
		t.Fatalf("expected content to be cached after the first fetch, got %d fetches", calls)
	}
}

func TestMatchesChecksumsRequiresOnlyOneMatch(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/tmp/a.js", []byte("hello"), 0o644)
	s := New(FileIdentifier("/tmp/a.js"), Descriptor{Path: "/tmp/a.js"}, fs, nil, nil)

	sum := md5.Sum([]byte("hello"))
	checksums := []Checksum{
		{Algorithm: "SHA1", Checksum: "deadbeef"}, // wrong, checked first-ish but doesn't matter
		{Algorithm: "MD5", Checksum: hex.EncodeToString(sum[:])},
	}
	ok, err := s.MatchesChecksums(context.Background(), checksums)
	if err != nil {
		t.Fatalf("MatchesChecksums: %v", err)
	}
	if !ok {
		t.Fatal("expected a match since one of the two checksums is correct")
	}
}

func TestLocationString(t *testing.T) {
	loc := Location{Source: FileIdentifier("/tmp/loop.js"), Line: 3, Column: 5}
	got := loc.String()
	want := "/tmp/loop.js:3:5"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
