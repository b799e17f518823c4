package script

import (
	"testing"

	"github.com/pspoerri/tilemaker/internal/model"
)

func TestExampleImplementsBridge(t *testing.T) {
	var _ Bridge = NewExample()
}

func TestExampleRoadMinZoom(t *testing.T) {
	e := NewExample()
	out := e.WayFunction(1, nil, map[string]string{"highway": "motorway"})
	if len(out) != 1 || out[0].MinZoom != 3 {
		t.Fatalf("expected motorway min_zoom 3, got %+v", out)
	}
	out = e.WayFunction(2, nil, map[string]string{"highway": "residential"})
	if len(out) != 1 || out[0].MinZoom != 13 {
		t.Fatalf("expected residential min_zoom 13, got %+v", out)
	}
}

func TestExampleRelationScanRejectsNonMultipolygon(t *testing.T) {
	e := NewExample()
	res := e.RelationScan(1, map[string]string{"type": "route"})
	if res.Accepted {
		t.Fatal("expected route relations to be rejected")
	}
	res = e.RelationScan(2, map[string]string{"type": "multipolygon"})
	if !res.Accepted {
		t.Fatal("expected multipolygon relations to be accepted")
	}
}

func TestExampleNodeFunctionSkipsUntaggedNodes(t *testing.T) {
	e := NewExample()
	if out := e.NodeFunction(1, model.LatpLon{}, nil); out != nil {
		t.Fatalf("expected no output for untagged node, got %v", out)
	}
}
