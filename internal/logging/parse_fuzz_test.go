package logging

import "testing"

// Any accepted spelling must map to a level that parses back to itself.
func FuzzParseLevelCanonical(f *testing.F) {
	for _, seed := range []string{"debug", " Warn", "WARNING", "error\n", "info", "", "trace"} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, raw string) {
		level, ok := ParseLevel(raw)
		if !ok {
			if level != "" {
				t.Fatalf("rejected %q but returned %q", raw, level)
			}
			return
		}
		again, ok := ParseLevel(string(level))
		if !ok || again != level {
			t.Fatalf("level %q from %q does not parse back to itself", level, raw)
		}
	})
}
