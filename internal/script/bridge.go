// Package script defines the external collaborator interface the
// pipeline calls into while walking a PBF file.
// Everything here is pure-function-like from the pipeline's
// perspective: no callback mutates pipeline-owned state directly, it
// only returns data.
package script

import "github.com/pspoerri/tilemaker/internal/model"

// Member is one relation member as presented to RelationFunction:
// the member's kind-tagged id (resolved through the node or way store
// by the caller) and its role string.
type Member struct {
	Type model.NodeIdTag // TagNodeStore or TagWayStore
	Ref  uint64
	Role string
}

// RelationScanResult is what RelationScan reports back for one
// relation: whether the pipeline should track its members, plus any
// tags the bridge wants merged onto the relation's working tag set
// (e.g. synthesizing "type=multipolygon" handling).
type RelationScanResult struct {
	Accepted bool
	AddedTags map[string]string
}

// Bridge is the six-method callback interface. A concrete bridge
// (e.g. Example in this package) encodes one tileset's style logic;
// internal/pipeline holds only this interface, never a concrete type.
type Bridge interface {
	// SignificantNodeKeys returns the tag keys that make a node worth
	// scanning even when it is otherwise unreferenced.
	SignificantNodeKeys() []string

	// SignificantWayKeys returns the tag keys that make a way worth
	// scanning in WayScan. A nil/empty result disables
	// WayScan entirely, matching the spec's "only if the script
	// declared significant way keys".
	SignificantWayKeys() []string

	// RelationScan is called once per relation during phase 1.
	RelationScan(id int64, tags map[string]string) RelationScanResult

	// NodeFunction is called during phase 3 for every used-or-significant
	// node; it may emit zero or more output objects.
	NodeFunction(id int64, ll model.LatpLon, tags map[string]string) []model.OutputObject

	// WayFunction is called during phase 4 for every qualifying way.
	WayFunction(id int64, nodeIDs []int64, tags map[string]string) []model.OutputObject

	// RelationFunction is called during phase 5 for every accepted
	// relation, with its members already resolved to store references.
	RelationFunction(id int64, members []Member, tags map[string]string) []model.OutputObject
}
