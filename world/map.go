package world

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

type Tile uint8

const (
	FloorTile Tile = iota
	WallTile
)

// Map is a grid of unit cells. World coordinates run from 0 to Width and 0
// to Height; cell (x, y) covers [x, x+1) by [y, y+1).
type Map struct {
	Name   string
	Tiles  []Tile
	Width  int
	Height int
	Spawns [2]mgl64.Vec2
}

var ErrOutOfBounds = errors.New("out of bounds")

func (m *Map) At(x, y int) (Tile, error) {
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		return WallTile, ErrOutOfBounds
	}
	return m.Tiles[m.Width*y+x], nil
}

func (m *Map) ForEach(callback func(x, y int, tile Tile)) {
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			callback(x, y, m.Tiles[m.Width*y+x])
		}
	}
}

// Walkable reports whether p lies on a floor cell.
func (m *Map) Walkable(p mgl64.Vec2) bool {
	tile, err := m.At(int(math.Floor(p.X())), int(math.Floor(p.Y())))
	return err == nil && tile == FloorTile
}

// Clamp pulls p inside the map bounds.
func (m *Map) Clamp(p mgl64.Vec2) mgl64.Vec2 {
	return mgl64.Vec2{
		clamp(p.X(), 0, float64(m.Width)),
		clamp(p.Y(), 0, float64(m.Height)),
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func (m *Map) Spawn(team Team) (mgl64.Vec2, bool) {
	i, ok := team.Index()
	if !ok {
		return mgl64.Vec2{}, false
	}
	return m.Spawns[i], true
}

// LoadMap parses the text format: width and height on the first two lines,
// then one row per line with '.' floor, '#' wall, '1' and '2' team spawns.
func LoadMap(name, contents string) (*Map, error) {
	scanner := bufio.NewScanner(strings.NewReader(contents))

	scanner.Scan()
	width, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return nil, fmt.Errorf("map %s: width: %w", name, err)
	}

	scanner.Scan()
	height, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return nil, fmt.Errorf("map %s: height: %w", name, err)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("map %s: bad size %dx%d", name, width, height)
	}

	m := &Map{
		Name:   name,
		Tiles:  make([]Tile, 0, width*height),
		Width:  width,
		Height: height,
	}
	var found [2]bool
	for scanner.Scan() {
		row := strings.TrimSpace(scanner.Text())
		if row == "" {
			continue
		}
		y := len(m.Tiles) / width
		if len(row) != width {
			return nil, fmt.Errorf("map %s: row %d has %d cells, want %d", name, y, len(row), width)
		}
		for x, item := range row {
			switch item {
			case '.':
				m.Tiles = append(m.Tiles, FloorTile)
			case '#':
				m.Tiles = append(m.Tiles, WallTile)
			case '1', '2':
				i := int(item - '1')
				m.Spawns[i] = Vec(float64(x)+0.5, float64(y)+0.5)
				found[i] = true
				m.Tiles = append(m.Tiles, FloorTile)
			default:
				return nil, fmt.Errorf("map %s: unknown cell %q at %d,%d", name, item, x, y)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(m.Tiles) != width*height {
		return nil, fmt.Errorf("map %s: %d rows, want %d", name, len(m.Tiles)/width, height)
	}
	if !found[0] || !found[1] {
		return nil, fmt.Errorf("map %s: missing team spawn", name)
	}
	return m, nil
}

func LoadMapFile(path string) (*Map, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadMap(path, string(contents))
}

const defaultMap = `40
16
########################################
#......................................#
#......................................#
#.......#..........................#...#
#.......#..........................#...#
#......................................#
#......................................#
#.1..................................2.#
#......................................#
#......................................#
#...#..........................#.......#
#...#..........................#.......#
#......................................#
#......................................#
#......................................#
########################################
`

// DefaultMap is the built-in arena.
func DefaultMap() *Map {
	m, err := LoadMap("arena", defaultMap)
	if err != nil {
		panic(err)
	}
	return m
}
