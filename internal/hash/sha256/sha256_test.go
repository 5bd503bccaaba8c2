package sha256

import "testing"

func TestSum(t *testing.T) {
	t.Parallel()

	// Known digest of the empty input.
	if got := Sum(nil); got != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Fatalf("unexpected empty digest %s", got)
	}
	if Sum([]byte("<html></html>")) == Sum([]byte("<html> </html>")) {
		t.Fatal("expected differing content to produce differing digests")
	}
	if Sum([]byte("abc")) != Sum([]byte("abc")) {
		t.Fatal("expected digest to be deterministic")
	}
}
