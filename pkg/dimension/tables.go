package dimension

// grid is a (columns, rows) pair in the beat-frame layout tables.
type grid struct {
	columns, rows int
}

// layoutsWithoutStart holds the reference beat-frame layouts for sequences
// rendered without a start-position cell, indexed by beat count.
// These values are an output-compatibility asset: do not regenerate them.
var layoutsWithoutStart = [MaxTableBeats + 1]grid{
	{1, 1}, {1, 1}, {2, 1}, {3, 1}, {4, 1}, {3, 2}, {3, 2}, {4, 2},
	{4, 2}, {3, 3}, {4, 3}, {4, 3}, {4, 3}, {4, 4}, {4, 4}, {4, 4},
	{4, 4}, {5, 4}, {5, 4}, {5, 4}, {5, 4}, {6, 4}, {6, 4}, {6, 4},
	{6, 4}, {8, 4}, {8, 4}, {8, 4}, {8, 4}, {8, 4}, {8, 4}, {8, 4},
	{8, 4}, {8, 5}, {8, 5}, {8, 5}, {8, 5}, {8, 5}, {8, 5}, {8, 5},
	{8, 5}, {8, 6}, {8, 6}, {8, 6}, {8, 6}, {8, 6}, {8, 6}, {8, 6},
	{8, 6}, {8, 7}, {8, 7}, {8, 7}, {8, 7}, {8, 7}, {8, 7}, {8, 7},
	{8, 7}, {8, 8}, {8, 8}, {8, 8}, {8, 8}, {8, 8}, {8, 8}, {8, 8},
	{8, 8},
}

// layoutsWithStart holds the reference layouts when the first column is
// reserved for the start position.
var layoutsWithStart = [MaxTableBeats + 1]grid{
	{1, 1}, {2, 1}, {3, 1}, {4, 1}, {5, 1}, {4, 2}, {4, 2}, {5, 2},
	{5, 2}, {4, 3}, {5, 3}, {5, 3}, {5, 3}, {5, 4}, {5, 4}, {5, 4},
	{5, 4}, {6, 4}, {6, 4}, {6, 4}, {6, 4}, {7, 4}, {7, 4}, {7, 4},
	{7, 4}, {9, 4}, {9, 4}, {9, 4}, {9, 4}, {9, 4}, {9, 4}, {9, 4},
	{9, 4}, {9, 5}, {9, 5}, {9, 5}, {9, 5}, {9, 5}, {9, 5}, {9, 5},
	{9, 5}, {9, 6}, {9, 6}, {9, 6}, {9, 6}, {9, 6}, {9, 6}, {9, 6},
	{9, 6}, {9, 7}, {9, 7}, {9, 7}, {9, 7}, {9, 7}, {9, 7}, {9, 7},
	{9, 7}, {9, 8}, {9, 8}, {9, 8}, {9, 8}, {9, 8}, {9, 8}, {9, 8},
	{9, 8},
}

// Additional-height steps in unscaled pixels, indexed by bucket
// (0 beats, 1 beat, 2 beats, 3 or more beats).
var (
	titleHeights  = [4]float64{0, 150, 200, 300}
	footerHeights = [4]float64{0, 55, 75, 150}
)
