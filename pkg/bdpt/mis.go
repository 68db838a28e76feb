package bdpt

import "github.com/tanager-render/sa-bdpt/pkg/core"

// MISWeight computes the multiple-importance-sampling weight of strategy
// (s,t) per §4.C.2. It works against shadow copies of the two connection
// endpoints and their predecessors rather than mutating the subpaths and
// restoring them afterward — the "preferred for testability" alternative
// design note calls out: a small stack allocation per call, no guarded
// restore on every exit path to get wrong.
func MISWeight(
	scene core.Scene,
	lightSubpath, cameraSubpath *Path,
	sampledVertex *Vertex,
	s, t int,
	distr core.LightDistribution,
	lightToIndex map[core.Light]int,
	rect Rectifier,
	strategy core.MISStrategy,
	pRaster core.Vec2,
) float64 {
	if s+t == 2 {
		return 1
	}

	// Shadow copies: the subset of vertices whose PdfRev/Delta this
	// computation needs to see under the *current* strategy's viewpoint,
	// with the freshly sampled endpoint substituted in.
	var pt, ptMinus, qs, qsMinus Vertex
	var havePt, havePtMinus, haveQs, haveQsMinus bool

	if t > 0 && !(t == 1 && sampledVertex != nil) {
		pt = *cameraSubpath.At(t - 1)
		havePt = true
	}
	if t > 1 {
		ptMinus = *cameraSubpath.At(t - 2)
		havePtMinus = true
	}
	if s > 0 && !(s == 1 && sampledVertex != nil) {
		qs = *lightSubpath.At(s - 1)
		haveQs = true
	}
	if s > 1 {
		qsMinus = *lightSubpath.At(s - 2)
		haveQsMinus = true
	}

	if s == 1 && sampledVertex != nil {
		qs = *sampledVertex
		haveQs = true
	} else if t == 1 && sampledVertex != nil {
		pt = *sampledVertex
		havePt = true
	}

	if havePt {
		pt.Delta = false
	}
	if haveQs {
		qs.Delta = false
	}

	if havePt {
		if s > 0 {
			var qsMinusPtr *Vertex
			if haveQsMinus {
				qsMinusPtr = &qsMinus
			}
			pt.PdfRev = qs.Pdf(scene, qsMinusPtr, &pt)
		} else {
			pt.PdfRev = pt.PdfLightOrigin(scene, &ptMinus, distr, lightToIndex)
		}
	}
	if havePtMinus {
		if s > 0 {
			var qsPtr *Vertex
			if haveQs {
				qsPtr = &qs
			}
			ptMinus.PdfRev = pt.Pdf(scene, qsPtr, &ptMinus)
		} else {
			ptMinus.PdfRev = pt.PdfLight(scene, &ptMinus)
		}
	}
	if haveQs && havePt {
		var ptMinusPtr *Vertex
		if havePtMinus {
			ptMinusPtr = &ptMinus
		}
		qs.PdfRev = pt.Pdf(scene, ptMinusPtr, &qs)
	}
	if haveQsMinus && haveQs && havePt {
		qsMinus.PdfRev = qs.Pdf(scene, &pt, &qsMinus)
	}

	// depth counts bounces between the two endpoints (s+t-2), consistently
	// with the same convention the driver uses to bucket rectifier
	// estimates and enforce RectiMinDepth/RectiMaxDepth.
	depth := s + t - 2
	factor := func(strategyT int) float64 {
		if rect == nil {
			return 1
		}
		return rect.Get(pRaster, depth, strategyT)
	}

	combine := func(ri, alpha float64) float64 {
		switch strategy {
		case core.MISPower:
			return ri * ri * alpha
		case core.MISUniform:
			return alpha
		default: // balance
			return ri * alpha
		}
	}

	sumRi := 0.0

	ri := 1.0
	// camVerts[i] for i in [0, t-1]: index t-1 is pt, t-2 is ptMinus, the
	// rest come straight from cameraSubpath (their PdfRev/Delta are
	// unaffected by this strategy's substitution).
	camAt := func(i int) *Vertex {
		switch i {
		case t - 1:
			return &pt
		case t - 2:
			return &ptMinus
		default:
			return cameraSubpath.At(i)
		}
	}
	for i := t - 1; i > 0; i-- {
		v := camAt(i)
		ri *= remap0(v.PdfRev) / remap0(v.PdfFwd)
		deltaHere := v.Delta
		deltaPrev := camAt(i - 1).Delta
		if !deltaHere && !deltaPrev {
			sumRi += combine(ri, factor(i))
		}
	}

	ri = 1.0
	lightAt := func(i int) *Vertex {
		switch i {
		case s - 1:
			return &qs
		case s - 2:
			return &qsMinus
		default:
			return lightSubpath.At(i)
		}
	}
	for i := s - 1; i >= 0; i-- {
		v := lightAt(i)
		ri *= remap0(v.PdfRev) / remap0(v.PdfFwd)
		var deltaPrev bool
		if i > 0 {
			deltaPrev = lightAt(i - 1).Delta
		} else {
			deltaPrev = v.IsDeltaLight()
		}
		if !v.Delta && !deltaPrev {
			sumRi += combine(ri, factor(s+t-1-i))
		}
	}

	beta := factor(t)
	if beta == 0 {
		beta = 1
	}
	return 1 / (1 + sumRi/beta)
}
