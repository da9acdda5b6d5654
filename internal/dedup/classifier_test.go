package dedup

import "testing"

func TestClassifyWithoutMatchIsNovel(t *testing.T) {
	t.Parallel()

	c := NewClassifier()
	rel := c.Classify(Subject{ItemID: 1, Title: "Correction: anything", Authority: AuthorityOfficial}, nil)
	if _, ok := rel.(Novel); !ok {
		t.Fatalf("expected Novel, got %T", rel)
	}
}

func TestClassifyRuleOrder(t *testing.T) {
	t.Parallel()

	c := NewClassifier()
	community := &Representative{ItemID: 10, Authority: AuthorityCommunity, Score: 6, ClusterCount: 1}
	official := &Representative{ItemID: 11, Authority: AuthorityOfficial, Score: 6, ClusterCount: 1}

	cases := []struct {
		name    string
		subject Subject
		rep     *Representative
		want    Relation
	}{
		{
			name:    "official correction stays a correction",
			subject: Subject{ItemID: 2, Title: "Update: figures revised", Authority: AuthorityOfficial},
			rep:     community,
			want:    Correction{NewID: 2, CorrectedID: 10},
		},
		{
			name:    "official over community upgrades",
			subject: Subject{ItemID: 3, Title: "Django 6.0 released", Authority: AuthorityOfficial},
			rep:     community,
			want:    AuthorityUpgrade{NewID: 3, PreviousID: 10},
		},
		{
			name:    "official over official echoes",
			subject: Subject{ItemID: 4, Title: "Django 6.0 released", Authority: AuthorityOfficial},
			rep:     official,
			want:    TrendEcho{RepresentativeID: 11},
		},
		{
			name:    "community over official echoes",
			subject: Subject{ItemID: 5, Title: "Django 6.0 is out", Authority: AuthorityCommunity},
			rep:     official,
			want:    TrendEcho{RepresentativeID: 11},
		},
	}

	for _, tc := range cases {
		if got := c.Classify(tc.subject, tc.rep); got != tc.want {
			t.Fatalf("%s: got %#v want %#v", tc.name, got, tc.want)
		}
	}
}

func TestIsCorrectionMatchesWholeWordsOnly(t *testing.T) {
	t.Parallel()

	c := NewClassifier("hotfix")
	positives := []string{
		"UPDATE: release moved to Friday",
		"Plone 6.1 security patch",
		"Desmiente el rumor sobre Django",
		"Fe de erratas: versión incorrecta",
		"Corrección sobre el anuncio",
		"Emergency hotfix for the scheduler",
		"Claim about GPT-5 was false.",
	}
	for _, title := range positives {
		if !c.IsCorrection(title) {
			t.Fatalf("expected correction marker in %q", title)
		}
	}

	negatives := []string{
		"Updated roadmap for 2026",
		"Dispatcher rewrite lands",
		"Falsehoods programmers believe",
		"Erratas sueltas en la documentación",
		"",
	}
	for _, title := range negatives {
		if c.IsCorrection(title) {
			t.Fatalf("did not expect correction marker in %q", title)
		}
	}
}

func TestParseAuthority(t *testing.T) {
	t.Parallel()

	if ParseAuthority(" Official ") != AuthorityOfficial {
		t.Fatalf("expected official source type to parse as official")
	}
	for _, raw := range []string{"community", "blog", ""} {
		if ParseAuthority(raw).Official() {
			t.Fatalf("expected %q to be non-official", raw)
		}
	}
}

func TestRelationHelpers(t *testing.T) {
	t.Parallel()

	if KindOf(AuthorityUpgrade{}) != KindAuthorityUpgrade || KindOf(TrendEcho{}) != KindTrendEcho {
		t.Fatalf("unexpected relation kinds")
	}
	if NeedsVector(TrendEcho{}) || !NeedsVector(Correction{}) || !NeedsVector(Novel{}) {
		t.Fatalf("unexpected NeedsVector results")
	}
	if NeedsEvaluation(AuthorityUpgrade{}) || !NeedsEvaluation(Correction{}) {
		t.Fatalf("unexpected NeedsEvaluation results")
	}
}
