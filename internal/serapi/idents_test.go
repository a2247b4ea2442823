package serapi

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNewIdentifiers(t *testing.T) {
	tests := []struct {
		name     string
		feedback []string
		want     []string
	}{
		{
			name: "inductive definition",
			feedback: []string{
				"nat is defined",
				"nat_rect is defined",
				"nat_ind is defined",
				"nat_rec is defined",
				"nat_sind is defined",
			},
			want: []string{"nat", "nat_rect", "nat_ind", "nat_rec", "nat_sind"},
		},
		{
			name:     "admitted conjecture",
			feedback: []string{"foobar is declared"},
			want:     []string{"foobar"},
		},
		{
			name:     "module opening",
			feedback: []string{"Interactive Module foo started"},
			want:     []string{"foo"},
		},
		{
			name:     "module closing",
			feedback: []string{"Module foo is defined"},
			want:     []string{"foo"},
		},
		{
			name:     "module type",
			feedback: []string{"Module Type T started"},
			want:     []string{"T"},
		},
		{
			name:     "mutual definition",
			feedback: []string{"A, B are defined"},
			want:     []string{"A", "B"},
		},
		{
			name:     "fixpoint",
			feedback: []string{"fix_f is recursively defined"},
			want:     []string{"fix_f"},
		},
		{
			name:     "mutual cofixpoint",
			feedback: []string{"f, g are corecursively defined"},
			want:     []string{"f", "g"},
		},
		{
			name:     "redefinition",
			feedback: []string{"foobar' is redefined"},
			want:     []string{"foobar'"},
		},
		{
			name:     "proof opener introduces nothing",
			feedback: []string{"1 goal\n\n  ============================\n  True"},
			want:     nil,
		},
		{
			name:     "unrelated chatter",
			feedback: []string{"tactic failed", "now use induction"},
			want:     nil,
		},
		{
			name:     "no feedback",
			feedback: nil,
			want:     nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseNewIdentifiers(tt.feedback))
		})
	}
}

// printAllLines is a "Print All." dump after defining an inductive, a
// fixpoint, a parameter, and a couple of lemmas inside a section.
var printAllLines = []string{
	" >>>>>>> Library SerTop",
	"Inductive seq : forall _ : nat, Set :=",
	"    niln : seq O | consn : forall (n _ : nat) (_ : seq n), seq (S n)",
	"",
	"For seq: Argument scope is [nat_scope]",
	"For consn: Argument scopes are [nat_scope nat_scope _]",
	"seq_rect : ",
	"forall (P : forall (n : nat) (_ : seq n), Type) (_ : P O niln)",
	"  (_ : forall (n n0 : nat) (s : seq n) (_ : P n s), P (S n) (consn n n0 s))",
	"  (n : nat) (s : seq n), P n s",
	"seq_ind : ",
	"forall (P : forall (n : nat) (_ : seq n), Prop) (_ : P O niln)",
	"  (_ : forall (n n0 : nat) (s : seq n) (_ : P n s), P (S n) (consn n n0 s))",
	"  (n : nat) (s : seq n), P n s",
	"seq_rec : ",
	"forall (P : forall (n : nat) (_ : seq n), Set) (_ : P O niln)",
	"  (_ : forall (n n0 : nat) (s : seq n) (_ : P n s), P (S n) (consn n n0 s))",
	"  (n : nat) (s : seq n), P n s",
	"seq_sind : ",
	"forall (P : forall (n : nat) (_ : seq n), SProp) (_ : P O niln)",
	"  (_ : forall (n n0 : nat) (s : seq n) (_ : P n s), P (S n) (consn n n0 s))",
	"  (n : nat) (s : seq n), P n s",
	"length : forall (n : nat) (_ : seq n), nat",
	"m : Set",
	"length_corr : forall (n : nat) (s : seq n), @eq nat (length n s) n",
	"b2Prop : forall _ : bool, Prop",
	"A : ",
}

func TestPrintAllIdent(t *testing.T) {
	wantByLine := []string{
		"SerTop", "seq", "", "", "", "",
		"seq_rect", "", "", "",
		"seq_ind", "", "", "",
		"seq_rec", "", "", "",
		"seq_sind", "", "", "",
		"length", "m", "length_corr", "b2Prop", "A",
	}
	require.Len(t, wantByLine, len(printAllLines))
	for i, line := range printAllLines {
		assert.Equal(t, wantByLine[i], printAllIdent(line), "line %d: %q", i, line)
	}

	// Section variables print as named assumptions.
	assert.Equal(t, "A", printAllIdent("*** [ A : Set ]"))
	assert.Equal(t, "", printAllIdent("*** [ A : Set ] trailing"))
}

func TestGetLocalIDs(t *testing.T) {
	tr := newScript(t, nil, exchange{
		cmd: `(Query () (Vernac "Print All."))`,
		units: []string{
			ack(1),
			messageUnit(strings.Join(printAllLines, "\n")),
			messageUnit("*** [ s : Set ]"),
			completed(1),
		},
	})
	s := testSession(t, tr, "8.15.2+0.15.4")

	ids, err := s.GetLocalIDs(context.Background())
	require.NoError(t, err)
	want := []string{
		"SerTop", "seq", "seq_rect", "seq_ind", "seq_rec", "seq_sind",
		"length", "m", "length_corr", "b2Prop", "A", "s",
	}
	assert.Equal(t, want, ids)
}

func TestGetConjectureID(t *testing.T) {
	tests := []struct {
		name  string
		units func() []string
		want  string
	}{
		{
			name: "open proof",
			units: func() []string {
				return []string{ack(1), messageUnit("length_corr"), completed(1)}
			},
			want: "length_corr",
		},
		{
			name: "nested proofs report the innermost first",
			units: func() []string {
				return []string{ack(1), messageUnit("aux\nlength_corr"), completed(1)}
			},
			want: "aux",
		},
		{
			name: "no open proof",
			units: func() []string {
				return []string{ack(1), completed(1)}
			},
			want: "",
		},
		{
			name: "blank message",
			units: func() []string {
				return []string{ack(1), messageUnit(""), completed(1)}
			},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newScript(t, nil, exchange{
				cmd:   `(Query () (Vernac "Show Conjectures."))`,
				units: tt.units(),
			})
			s := testSession(t, tr, "8.15.2+0.15.4")

			id, err := s.GetConjectureID(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}
