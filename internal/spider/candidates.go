package spider

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const upstreamJAR = "https://raw.githubusercontent.com/FongMi/CatVodSpider/main/jar/custom_spider.jar"

// Candidate tiers in priority order: regional mirrors first, then international
// hosts, then public GitHub proxies.
var (
	RegionalCandidates = []string{
		"https://agit.ai/Yoursmile7/TVBox/raw/branch/master/jar/custom_spider.jar",
		"https://ghproxy.net/" + upstreamJAR,
		"https://mirror.ghproxy.com/" + upstreamJAR,
	}
	InternationalCandidates = []string{
		upstreamJAR,
		"https://raw.gitmirror.com/FongMi/CatVodSpider/main/jar/custom_spider.jar",
		"https://ghproxy.cc/" + upstreamJAR,
	}
	ProxyCandidates = []string{
		"https://gh-proxy.com/" + upstreamJAR,
		"https://ghps.cc/" + upstreamJAR,
		"https://gh.api.99988866.xyz/" + upstreamJAR,
	}
)

// DefaultCandidates returns a fresh copy of the built-in tiers, concatenated.
func DefaultCandidates() []string {
	out := make([]string, 0, len(RegionalCandidates)+len(InternationalCandidates)+len(ProxyCandidates))
	out = append(out, RegionalCandidates...)
	out = append(out, InternationalCandidates...)
	return append(out, ProxyCandidates...)
}

// candidateFile is the YAML override format:
//
//	regional: [https://...]
//	international: [https://...]
//	proxy: [https://...]
type candidateFile struct {
	Regional      []string `yaml:"regional"`
	International []string `yaml:"international"`
	Proxy         []string `yaml:"proxy"`
}

// LoadCandidates reads a YAML tier file. path "" returns DefaultCandidates.
// An empty tier in the file keeps the built-in tier. Duplicates are dropped.
func LoadCandidates(path string) ([]string, error) {
	if path == "" {
		return DefaultCandidates(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("spider: candidates: %w", err)
	}
	var f candidateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("spider: candidates %s: %w", path, err)
	}
	tiers := [][]string{
		orDefault(f.Regional, RegionalCandidates),
		orDefault(f.International, InternationalCandidates),
		orDefault(f.Proxy, ProxyCandidates),
	}
	seen := make(map[string]bool)
	var out []string
	for _, tier := range tiers {
		for _, u := range tier {
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true
			out = append(out, u)
		}
	}
	return out, nil
}

func orDefault(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}
