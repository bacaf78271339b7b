package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyEdits(t *testing.T) {
	src := []byte("function f(a) {}")

	tests := []struct {
		name  string
		edits []edit
		want  string
	}{
		{"no edits", nil, "function f(a) {}"},
		{"insertion", []edit{{start: 12, end: 12, text: ": T"}}, "function f(a: T) {}"},
		{
			name:  "out of order",
			edits: []edit{{start: 13, end: 13, text: ": R"}, {start: 12, end: 12, text: ": T"}},
			want:  "function f(a: T): R {}",
		},
		{"replacement", []edit{{start: 14, end: 16, text: ";"}}, "function f(a) ;"},
		{
			name:  "overlap dropped",
			edits: []edit{{start: 9, end: 13, text: "g()"}, {start: 11, end: 12, text: "b"}},
			want:  "function g() {}",
		},
		{
			name:  "same offset keeps order",
			edits: []edit{{start: 12, end: 12, text: "1"}, {start: 12, end: 12, text: "2"}},
			want:  "function f(a12) {}",
		},
		{"out of range dropped", []edit{{start: 10, end: 99, text: "x"}}, "function f(a) {}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(applyEdits(src, tt.edits)))
		})
	}
}

func TestApplyEditsDoesNotModifySource(t *testing.T) {
	src := []byte("abc")
	out := applyEdits(src, nil)
	out[0] = 'x'
	assert.Equal(t, "abc", string(src))

	applyEdits(src, []edit{{start: 1, end: 2, text: "Z"}})
	assert.Equal(t, "abc", string(src))
}
