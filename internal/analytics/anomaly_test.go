package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vecFeature(id string, vals ...float64) Feature {
	var v [10]float64
	copy(v[:], vals)
	return Feature{ID: id, Vector: v}
}

func TestClusterAnomalies_DenseGroupFormsCluster(t *testing.T) {
	features := []Feature{
		vecFeature("a", 0, 0, 0, 0, 0, 0, 0, 0, 0, 0),
		vecFeature("b", 0.01, 0, 0, 0, 0, 0, 0, 0, 0, 0),
		vecFeature("c", 0.02, 0, 0, 0, 0, 0, 0, 0, 0, 0),
		vecFeature("d", 0.01, 0.01, 0, 0, 0, 0, 0, 0, 0, 0),
		vecFeature("far", 50, 50, 50, 1, 1, 1, 1, 1, 1, 1),
	}
	cfg := AnomalyConfig{Eps: 1.0, MinSamples: 3, MinClusterSize: 3, AdaptiveEps: false}
	clusters, anomalies := ClusterAnomalies(features, cfg)

	require.Len(t, clusters, 1)
	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, clusters[0].Members)
	require.Len(t, anomalies, 1)
	assert.Equal(t, "far", anomalies[0].ID)
}

func TestClusterAnomalies_EmptyInput(t *testing.T) {
	clusters, anomalies := ClusterAnomalies(nil, DefaultAnomalyConfig())
	assert.Empty(t, clusters)
	assert.Empty(t, anomalies)
}

func TestClusterAnomalies_SmallClusterBecomesAnomalies(t *testing.T) {
	features := []Feature{
		vecFeature("a", 0, 0, 0, 0, 0, 0, 0, 0, 0, 0),
		vecFeature("b", 0.01, 0, 0, 0, 0, 0, 0, 0, 0, 0),
	}
	cfg := AnomalyConfig{Eps: 1.0, MinSamples: 2, MinClusterSize: 3, AdaptiveEps: false}
	clusters, anomalies := ClusterAnomalies(features, cfg)
	assert.Empty(t, clusters)
	assert.Len(t, anomalies, 2)
}

func TestAdaptiveEps_MedianOfKthNeighborDistances(t *testing.T) {
	features := []Feature{
		vecFeature("a", 0),
		vecFeature("b", 1),
		vecFeature("c", 2),
		vecFeature("d", 3),
		vecFeature("e", 4),
	}
	eps := adaptiveEps(features, 2)
	assert.Greater(t, eps, 0.0)
}

func TestBuildFeature_BoundsCappedFields(t *testing.T) {
	f := BuildFeature("e1", 0.1, 0.2, 0.3, true, false, 500, 0.9, 100, 50, 1.0)
	assert.Equal(t, 1.0, f.Vector[5]) // stepCount/100 capped at 1
	assert.Equal(t, 1.0, f.Vector[7]) // latency/10s capped at 1
	assert.Equal(t, 1.0, f.Vector[8]) // tagCount/10 capped at 1
	assert.Equal(t, 1.0, f.Vector[3])
	assert.Equal(t, 0.0, f.Vector[4])
}
