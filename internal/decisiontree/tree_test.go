package decisiontree

import "testing"

func sample(matchType string, wordCount int, keywordType string, avgBid, value float64) Sample {
	return Sample{
		Features: Features{MatchType: matchType, WordCount: wordCount, KeywordType: keywordType, AvgBid: avgBid},
		Value:    value,
	}
}

func TestBuildMarksDegradedBelowMinSamples(t *testing.T) {
	samples := []Sample{
		sample("exact", 2, "brand", 1.0, 0.1),
		sample("broad", 4, "generic", 0.5, 0.2),
	}
	tree := Build(TargetCVR, samples, 6, 20)
	if tree.Status != StatusDegraded {
		t.Fatalf("expected degraded status with %d samples under min %d", len(samples), 20)
	}
	_, lowConfidence := tree.PredictKeyword(Features{MatchType: "exact", WordCount: 2, KeywordType: "brand", AvgBid: 1.0})
	if !lowConfidence {
		t.Fatalf("expected lowConfidence for a degraded tree")
	}
}

func TestBuildSplitsOnSeparableCategory(t *testing.T) {
	var samples []Sample
	for i := 0; i < 30; i++ {
		samples = append(samples, sample("exact", 3, "brand", 1.0, 0.30))
	}
	for i := 0; i < 30; i++ {
		samples = append(samples, sample("broad", 3, "generic", 1.0, 0.05))
	}

	tree := Build(TargetCVR, samples, 6, 20)
	if tree.Status != StatusOK {
		t.Fatalf("expected OK status with 60 samples, got %s", tree.Status)
	}

	brandPred, lowConf := tree.PredictKeyword(Features{MatchType: "exact", WordCount: 3, KeywordType: "brand", AvgBid: 1.0})
	if lowConf {
		t.Fatalf("did not expect lowConfidence for a well-populated leaf")
	}
	genericPred, _ := tree.PredictKeyword(Features{MatchType: "broad", WordCount: 3, KeywordType: "generic", AvgBid: 1.0})

	if brandPred <= genericPred {
		t.Fatalf("expected brand prediction (%v) to exceed generic prediction (%v)", brandPred, genericPred)
	}
}

func TestPredictKeywordNilTreeIsLowConfidence(t *testing.T) {
	var tree *Tree
	value, lowConfidence := tree.PredictKeyword(Features{})
	if value != 0 || !lowConfidence {
		t.Fatalf("expected zero value and lowConfidence=true for a nil tree")
	}
}

func TestFeatureImportanceOnlyCountsInternalNodes(t *testing.T) {
	var samples []Sample
	for i := 0; i < 25; i++ {
		samples = append(samples, sample("exact", 3, "brand", 1.0, 0.30))
	}
	for i := 0; i < 25; i++ {
		samples = append(samples, sample("broad", 3, "generic", 1.0, 0.05))
	}
	tree := Build(TargetCVR, samples, 6, 20)

	importance := tree.FeatureImportance()
	if len(importance) == 0 {
		t.Fatalf("expected non-empty feature importance for a split tree")
	}
	for feature, gain := range importance {
		if gain < 0 {
			t.Fatalf("feature %s has negative importance %v", feature, gain)
		}
	}
}

func TestFeatureImportanceEmptyForUnsplitTree(t *testing.T) {
	samples := []Sample{sample("exact", 2, "brand", 1.0, 0.1)}
	tree := Build(TargetCVR, samples, 6, 20)
	importance := tree.FeatureImportance()
	if len(importance) != 0 {
		t.Fatalf("expected no splits on a single-sample tree, got %v", importance)
	}
}
