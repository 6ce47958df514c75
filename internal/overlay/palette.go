package overlay

import (
	"hash/fnv"
	"image/color"
)

// markerColor assigns a stable, distinct colour to an individual ID by
// hashing it onto the hue circle.
func markerColor(id string) color.RGBA {
	h := fnv.New32a()
	h.Write([]byte(id))
	hue := float64(h.Sum32()%360) / 360.0
	r, g, b := hslToRGB(hue, 0.7, 0.5)
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// heatColor maps a normalized intensity in [0, 1] onto a blue-to-red ramp
// with alpha proportional to intensity and the configured opacity. RGBA is
// alpha-premultiplied, so the channels are scaled by the alpha fraction.
func heatColor(intensity, opacity float64) color.RGBA {
	if intensity < 0 {
		intensity = 0
	}
	if intensity > 1 {
		intensity = 1
	}
	// Hue 2/3 (blue) down to 0 (red).
	hue := (1 - intensity) * 2.0 / 3.0
	r, g, b := hslToRGB(hue, 0.9, 0.5)
	a := intensity * opacity
	return color.RGBA{
		R: uint8(float64(r) * a),
		G: uint8(float64(g) * a),
		B: uint8(float64(b) * a),
		A: uint8(a * 255),
	}
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
