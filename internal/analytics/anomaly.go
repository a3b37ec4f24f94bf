package analytics

import (
	"math"
	"sort"
)

// Feature is the fixed-width feature vector derived from an episode for
// anomaly clustering: (domain-hash, kind-code, complexity-code,
// language-present, framework-present, step-count/100 capped, success rate,
// avg-latency/10s capped, tag count/10, outcome code).
type Feature struct {
	ID     string
	Vector [10]float64
}

// Cluster is a DBSCAN-discovered dense region.
type Cluster struct {
	Centroid [10]float64
	Density  float64
	Members  []string
}

// Anomaly is a point that failed to reach min_samples neighbors, or a member
// of a cluster smaller than min_cluster_size.
type Anomaly struct {
	ID                 string
	DistanceToNearestCentroid float64
	Reason             string
}

// AnomalyConfig tunes DBSCAN sensitivity.
type AnomalyConfig struct {
	Eps             float64 // 0 => derive adaptively
	MinSamples      int
	MinClusterSize  int
	AdaptiveEps     bool
}

func DefaultAnomalyConfig() AnomalyConfig {
	return AnomalyConfig{MinSamples: 4, MinClusterSize: 3, AdaptiveEps: true}
}

// ClusterAnomalies runs DBSCAN over features and splits the result into
// dense clusters (with centroid/density) and explicit anomalies (points
// whose neighbor count is below min_samples, plus every member of a cluster
// smaller than min_cluster_size), each anomaly annotated with
// its distance to the nearest centroid and a reason tag.
func ClusterAnomalies(features []Feature, cfg AnomalyConfig) ([]Cluster, []Anomaly) {
	n := len(features)
	if n == 0 {
		return nil, nil
	}

	eps := cfg.Eps
	if cfg.AdaptiveEps || eps <= 0 {
		eps = adaptiveEps(features, cfg.MinSamples)
	}
	minSamples := cfg.MinSamples
	if minSamples <= 0 {
		minSamples = 4
	}
	minClusterSize := cfg.MinClusterSize
	if minClusterSize <= 0 {
		minClusterSize = 3
	}

	neighbors := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if dist(features[i].Vector, features[j].Vector) <= eps {
				neighbors[i] = append(neighbors[i], j)
			}
		}
	}

	labels := make([]int, n) // 0 = unvisited, -1 = noise, >0 = cluster id
	clusterID := 0
	for i := 0; i < n; i++ {
		if labels[i] != 0 {
			continue
		}
		if len(neighbors[i])+1 < minSamples {
			labels[i] = -1
			continue
		}
		clusterID++
		expandCluster(i, neighbors, labels, clusterID, minSamples)
	}

	byCluster := make(map[int][]int)
	for i, l := range labels {
		if l > 0 {
			byCluster[l] = append(byCluster[l], i)
		}
	}

	var clusters []Cluster
	var anomalyIdx []int
	for id, members := range byCluster {
		if len(members) < minClusterSize {
			anomalyIdx = append(anomalyIdx, members...)
			continue
		}
		_ = id
		clusters = append(clusters, buildCluster(features, members))
	}
	for i, l := range labels {
		if l == -1 {
			anomalyIdx = append(anomalyIdx, i)
		}
	}

	sort.Slice(clusters, func(i, j int) bool { return clusters[i].Density > clusters[j].Density })

	var anomalies []Anomaly
	for _, i := range anomalyIdx {
		dMin := math.Inf(1)
		for _, c := range clusters {
			if d := dist(features[i].Vector, c.Centroid); d < dMin {
				dMin = d
			}
		}
		if math.IsInf(dMin, 1) {
			dMin = 0
		}
		reason := "low density neighborhood"
		if len(neighbors[i])+1 < minSamples {
			reason = "insufficient neighbors"
		}
		anomalies = append(anomalies, Anomaly{ID: features[i].ID, DistanceToNearestCentroid: dMin, Reason: reason})
	}
	sort.Slice(anomalies, func(i, j int) bool { return anomalies[i].ID < anomalies[j].ID })

	return clusters, anomalies
}

func expandCluster(seed int, neighbors [][]int, labels []int, clusterID, minSamples int) {
	labels[seed] = clusterID
	queue := append([]int(nil), neighbors[seed]...)
	for len(queue) > 0 {
		q := queue[0]
		queue = queue[1:]
		if labels[q] == -1 {
			labels[q] = clusterID
		}
		if labels[q] != 0 {
			continue
		}
		labels[q] = clusterID
		if len(neighbors[q])+1 >= minSamples {
			queue = append(queue, neighbors[q]...)
		}
	}
}

func buildCluster(features []Feature, members []int) Cluster {
	var centroid [10]float64
	for _, i := range members {
		for d := 0; d < 10; d++ {
			centroid[d] += features[i].Vector[d]
		}
	}
	for d := 0; d < 10; d++ {
		centroid[d] /= float64(len(members))
	}

	var sumDist float64
	for _, i := range members {
		sumDist += dist(features[i].Vector, centroid)
	}
	avgDist := sumDist / float64(len(members))
	density := 0.0
	if avgDist > 0 {
		density = 1 / avgDist
	} else {
		density = math.Inf(1)
	}

	ids := make([]string, len(members))
	for k, i := range members {
		ids[k] = features[i].ID
	}
	sort.Strings(ids)

	return Cluster{Centroid: centroid, Density: density, Members: ids}
}

func dist(a, b [10]float64) float64 {
	var sum float64
	for i := 0; i < 10; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// adaptiveEps sets eps to the median of each point's k-th nearest-neighbor
// distance, with k = min_samples.
func adaptiveEps(features []Feature, minSamples int) float64 {
	if minSamples <= 0 {
		minSamples = 4
	}
	n := len(features)
	if n <= 1 {
		return 1.0
	}
	k := minSamples
	if k >= n {
		k = n - 1
	}

	kth := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		dists := make([]float64, 0, n-1)
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			dists = append(dists, dist(features[i].Vector, features[j].Vector))
		}
		sort.Float64s(dists)
		if k-1 < len(dists) {
			kth = append(kth, dists[k-1])
		}
	}
	if len(kth) == 0 {
		return 1.0
	}
	sort.Float64s(kth)
	return kth[len(kth)/2]
}

// BuildFeature assembles the 10-dim feature vector described in
// SPEC_FULL.md §4.6 from pre-extracted episode scalars; internal/memory
// computes the raw inputs (domain hash, kind code, etc.) the same way
// internal/retriever does for its synthetic embedding, so the two stay
// numerically consistent.
func BuildFeature(id string, domainHash, kindCode, complexityCode float64, languagePresent, frameworkPresent bool, stepCount int, successRate, avgLatencySeconds float64, tagCount int, outcomeCode float64) Feature {
	v := [10]float64{}
	v[0] = domainHash
	v[1] = kindCode
	v[2] = complexityCode
	if languagePresent {
		v[3] = 1
	}
	if frameworkPresent {
		v[4] = 1
	}
	v[5] = math.Min(float64(stepCount)/100.0, 1.0)
	v[6] = successRate
	v[7] = math.Min(avgLatencySeconds/10.0, 1.0)
	v[8] = math.Min(float64(tagCount)/10.0, 1.0)
	v[9] = outcomeCode
	return Feature{ID: id, Vector: v}
}
