package hnsw

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
)

// magic identifies gist's HNSW graph binary format, adapted from sift's
// persist.go (which used "SHNW"). Renamed so the two formats are never
// confused if a stray sift file ends up on the same machine.
var magic = [4]byte{'G', 'I', 'H', 'N'}

const formatVersion = uint16(1)

type binaryWriter struct {
	w   io.Writer
	err error
}

func (bw *binaryWriter) write(v interface{}) {
	if bw.err != nil {
		return
	}
	bw.err = binary.Write(bw.w, binary.LittleEndian, v)
}

type binaryReader struct {
	r   io.Reader
	err error
}

func (br *binaryReader) read(v interface{}) {
	if br.err != nil {
		return
	}
	br.err = binary.Read(br.r, binary.LittleEndian, v)
}

// save writes the graph's structure (vectors and neighbour lists) to path.
// Record/path bookkeeping is persisted separately by Index.Save.
func (g *graph) save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create graph file: %w", err)
	}
	defer f.Close()

	w := &binaryWriter{w: bufio.NewWriter(f)}
	bf := w.w.(*bufio.Writer)

	w.write(magic)
	w.write(formatVersion)
	w.write(uint32(len(g.nodes)))
	w.write(g.entryPoint)
	w.write(uint32(g.maxLayer))
	w.write(uint32(g.m))
	w.write(uint32(g.efConstruction))
	w.write(uint32(g.efSearch))

	for _, n := range g.nodes {
		w.write(uint32(len(n.neighbors)))
		w.write(uint32(len(n.vec)))
		for _, f32 := range n.vec {
			w.write(math.Float32bits(f32))
		}
		for _, layer := range n.neighbors {
			w.write(uint32(len(layer)))
			for _, id := range layer {
				w.write(id)
			}
		}
	}

	if w.err != nil {
		return fmt.Errorf("write graph: %w", w.err)
	}
	return bf.Flush()
}

// load reads a graph previously written by save.
func load(path string) (*graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open graph file: %w", err)
	}
	defer f.Close()

	r := &binaryReader{r: bufio.NewReader(f)}

	var gotMagic [4]byte
	r.read(&gotMagic)
	if r.err != nil {
		return nil, fmt.Errorf("read magic: %w", r.err)
	}
	if gotMagic != magic {
		return nil, fmt.Errorf("not a gist hnsw graph file")
	}

	var version uint16
	r.read(&version)
	if version != formatVersion {
		return nil, fmt.Errorf("unsupported graph format version %d", version)
	}

	var nodeCount uint32
	r.read(&nodeCount)

	g := &graph{}
	r.read(&g.entryPoint)

	var maxLayer, m, efConstruction, efSearch uint32
	r.read(&maxLayer)
	r.read(&m)
	r.read(&efConstruction)
	r.read(&efSearch)
	g.maxLayer = int(maxLayer)
	g.m = int(m)
	g.efConstruction = int(efConstruction)
	g.efSearch = int(efSearch)
	g.ml = 1.0 / math.Log(float64(g.m))
	g.rng = rand.New(rand.NewSource(42))

	g.nodes = make([]node, 0, nodeCount)
	for i := uint32(0); i < nodeCount; i++ {
		var layerCount, vecLen uint32
		r.read(&layerCount)
		r.read(&vecLen)

		vec := make([]float32, vecLen)
		for j := range vec {
			var bits uint32
			r.read(&bits)
			vec[j] = math.Float32frombits(bits)
		}

		neighbors := make([][]uint32, layerCount)
		for l := uint32(0); l < layerCount; l++ {
			var count uint32
			r.read(&count)
			layer := make([]uint32, count)
			for k := range layer {
				r.read(&layer[k])
			}
			neighbors[l] = layer
		}

		g.nodes = append(g.nodes, node{neighbors: neighbors, vec: vec})
	}

	if r.err != nil && r.err != io.EOF {
		return nil, fmt.Errorf("read graph: %w", r.err)
	}
	return g, nil
}
