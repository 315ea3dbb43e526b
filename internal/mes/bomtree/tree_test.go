package bomtree

import (
	"context"
	"testing"

	"github.com/bitfantasy/amb-mes/internal/mes/classify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() MapCatalog {
	return MapCatalog{
		"ALOE-BASE-LIQ": {ItemCode: "ALOE-BASE-LIQ", UOM: "Kg", Rate: 2},
		"ELECTRIC-KWH":  {ItemCode: "ELECTRIC-KWH", UOM: "kWh", Rate: 0.5},
		"Q0-CARBON":     {ItemCode: "Q0-CARBON", UOM: "Kg", Rate: 4},
		"ALOE-200X":     {ItemCode: "ALOE-200X", UOM: "Kg", Rate: 30},
		"E001-DRUM":     {ItemCode: "E001-DRUM", UOM: "Nos", Rate: 12},
		"LABEL-X":       {ItemCode: "LABEL-X", UOM: "Nos", Rate: 0.1},
	}
}

func testInput() AssembleInput {
	return AssembleInput{
		BatchName:  "0227042251",
		ItemCode:   "0227",
		UOM:        "Kg",
		TotalQty:   300,
		SubLots:    3,
		Precursors: []string{"ALOE-BASE-LIQ"},
		Candidates: []Candidate{
			{ItemCode: "ELECTRIC-KWH", Qty: 30, UOM: "kWh"},
			{ItemCode: "Q0-CARBON", Qty: 3, UOM: "Kg", Rate: 5},
			{ItemCode: "ALOE-200X", Qty: 1.5, UOM: "Kg"},
			{ItemCode: "E001-DRUM", Qty: 6, UOM: "Nos"},
			{ItemCode: "LABEL-X", Qty: 6, UOM: "Nos"},
		},
	}
}

func TestAssemble_FanOut(t *testing.T) {
	tree, err := Assemble(context.Background(), testInput(), testCatalog())
	require.NoError(t, err)

	root := tree.Root
	assert.Equal(t, LevelMain, root.Level)
	assert.Equal(t, 300.0, root.Quantity)
	require.Len(t, root.Lines, 3)
	for i, l := range root.Lines {
		assert.Equal(t, 100.0, l.Qty)
		assert.Equal(t, SubLotKey("0227042251", i+1), l.ChildKey)
	}

	subs := tree.Level(LevelSubLot)
	require.Len(t, subs, 3)
	for _, s := range subs {
		assert.Equal(t, 100.0, s.Quantity)
		require.Len(t, s.Lines, 4, "one line per non-empty category")
		for _, l := range s.Lines {
			assert.Equal(t, 1.0, l.Qty)
		}
	}
	assert.Len(t, tree.Level(LevelGroup), 12)

	util := tree.Node(GroupKey("0227042251-1", classify.Utility))
	require.NotNil(t, util)
	assert.Equal(t, 1.0, util.Quantity)
	require.Len(t, util.Lines, 1)
	assert.Equal(t, 10.0, util.Lines[0].Qty)
	assert.Equal(t, 0.5, util.Lines[0].Rate, "catalog rate used when candidate has none")
	assert.InDelta(t, 5.0, util.Cost, 1e-9)

	supp := tree.Node(GroupKey("0227042251-2", classify.Supplies))
	require.NotNil(t, supp)
	assert.Equal(t, 5.0, supp.Lines[0].Rate, "explicit candidate rate wins")

	require.Len(t, tree.Unclassified, 1)
	assert.Equal(t, "LABEL-X", tree.Unclassified[0].ItemCode)
	assert.Equal(t, 0.0, root.Cost, "no cost roll-up into parents")
}

func TestAssemble_DuplicateCodesKeepLineRates(t *testing.T) {
	in := testInput()
	in.SubLots = 1
	in.Candidates = []Candidate{
		{ItemCode: "ALOE-200X", Qty: 10, UOM: "Kg", Rate: 5},
		{ItemCode: "ALOE-200X", Qty: 10, UOM: "Kg", Rate: 7},
		{ItemCode: "ALOE-200X", Qty: 1, UOM: "Kg"},
	}

	tree, err := Assemble(context.Background(), in, testCatalog())
	require.NoError(t, err)

	groups := tree.Level(LevelGroup)
	require.Len(t, groups, 1)
	set := groups[0]
	require.Len(t, set.Lines, 3)
	assert.Equal(t, 5.0, set.Lines[0].Rate)
	assert.Equal(t, 7.0, set.Lines[1].Rate)
	assert.Equal(t, 30.0, set.Lines[2].Rate)
	assert.InDelta(t, 10*5+10*7+1*30.0, set.Cost, 1e-9)
}

func TestAssemble_MissingPrecursorFailsFast(t *testing.T) {
	cat := testCatalog()
	delete(cat, "ALOE-BASE-LIQ")

	tree, err := Assemble(context.Background(), testInput(), cat)
	assert.Nil(t, tree)
	require.ErrorIs(t, err, ErrMissingItem)
	assert.Contains(t, err.Error(), "ALOE-BASE-LIQ")
}

func TestAssemble_MissingCandidate(t *testing.T) {
	cat := testCatalog()
	delete(cat, "E001-DRUM")

	_, err := Assemble(context.Background(), testInput(), cat)
	require.ErrorIs(t, err, ErrMissingItem)
	assert.Contains(t, err.Error(), "E001-DRUM")
}

func TestAssemble_InvalidInput(t *testing.T) {
	in := testInput()
	in.SubLots = 0
	_, err := Assemble(context.Background(), in, testCatalog())
	assert.Error(t, err)

	in = testInput()
	in.TotalQty = 0
	_, err = Assemble(context.Background(), in, testCatalog())
	assert.Error(t, err)
}

func TestAssemble_NoCandidates(t *testing.T) {
	in := testInput()
	in.Candidates = nil
	tree, err := Assemble(context.Background(), in, testCatalog())
	require.NoError(t, err)
	assert.Len(t, tree.Nodes, 4)
	assert.Empty(t, tree.Level(LevelGroup))
}

func TestTreeGraphExplode(t *testing.T) {
	tree, err := Assemble(context.Background(), testInput(), testCatalog())
	require.NoError(t, err)

	g := tree.Graph()
	require.NoError(t, g.DetectCycle())

	reqs, err := g.Explode(tree.Root.Key, 300)
	require.NoError(t, err)
	got := map[string]float64{}
	for _, r := range reqs {
		got[r.ItemCode] = r.Qty
	}
	assert.InDelta(t, 30.0, got["ELECTRIC-KWH"], 1e-9)
	assert.InDelta(t, 3.0, got["Q0-CARBON"], 1e-9)
	assert.InDelta(t, 6.0, got["E001-DRUM"], 1e-9)
	assert.NotContains(t, got, "LABEL-X")

	half, err := g.Explode(tree.Root.Key, 150)
	require.NoError(t, err)
	for _, r := range half {
		assert.InDelta(t, got[r.ItemCode]/2, r.Qty, 1e-9)
	}
}

func TestGraphDetectCycle(t *testing.T) {
	g := NewGraph()
	g.Add(&Node{Key: "A", Quantity: 1, Lines: []Line{{ItemCode: "B", Qty: 1, ChildKey: "B"}}})
	g.Add(&Node{Key: "B", Quantity: 1, Lines: []Line{{ItemCode: "C", Qty: 2, ChildKey: "C"}}})
	g.Add(&Node{Key: "C", Quantity: 1, Lines: []Line{{ItemCode: "A", Qty: 1, ChildKey: "A"}, {ItemCode: "RM", Qty: 1}}})

	err := g.DetectCycle()
	require.ErrorIs(t, err, ErrCycle)
	assert.Contains(t, err.Error(), "A -> B -> C -> A")

	_, err = g.Explode("B", 1)
	assert.ErrorIs(t, err, ErrCycle)
}

func TestGraphDiamondIsNotACycle(t *testing.T) {
	g := NewGraph()
	g.Add(&Node{Key: "TOP", Quantity: 1, Lines: []Line{{Qty: 1, ChildKey: "L"}, {Qty: 1, ChildKey: "R"}}})
	g.Add(&Node{Key: "L", Quantity: 1, Lines: []Line{{Qty: 1, ChildKey: "BASE"}}})
	g.Add(&Node{Key: "R", Quantity: 1, Lines: []Line{{Qty: 2, ChildKey: "BASE"}}})
	g.Add(&Node{Key: "BASE", Quantity: 1, Lines: []Line{{ItemCode: "WATER", Qty: 1, Rate: 1}}})

	require.NoError(t, g.DetectCycle())
	reqs, err := g.Explode("TOP", 1)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, 3.0, reqs[0].Qty)
	assert.Equal(t, 3.0, reqs[0].Amount)
}
