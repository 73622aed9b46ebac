package bulkmatch

import "testing"

func TestExtractSimilarityPercentage(t *testing.T) {
	cases := []struct {
		name  string
		pages []string
		want  float64
		ok    bool
	}{
		{name: "overall similarity on page two", pages: []string{"cover", "Submission\n  23% Overall Similarity\n"}, want: 23, ok: true},
		{name: "similarity index", pages: []string{"cover", "SIMILARITY INDEX: 7,5 %"}, want: 7.5, ok: true},
		{name: "originality report on last page", pages: []string{"cover", "no summary", "body", "14% \n   ORIGINALITY REPORT"}, want: 14, ok: true},
		{name: "originality report label first", pages: []string{"cover", "", "Originality Report\n\n  SIMILARITY\n 31%"}, want: 31, ok: true},
		{name: "page two wins over tail", pages: []string{"cover", "12% overall similarity", "88% originality report"}, want: 12, ok: true},
		{name: "out of range ignored", pages: []string{"cover", "450% overall similarity"}, ok: false},
		{name: "nothing", pages: []string{"cover", "hello"}, ok: false},
		{name: "single page", pages: []string{"5% originality report"}, want: 5, ok: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractSimilarityPercentage(tc.pages)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("got (%v, %v), want (%v, %v)", got, ok, tc.want, tc.ok)
			}
		})
	}
}
