package upscale

// Pixel buffers are packed RGBA8, one u32 per pixel, little-endian byte order
// (r in the low byte), matching frame.Raw/frame.Upscaled's byte layout exactly so no
// repacking is needed between a storage buffer upload and the wire format.

const dimsStruct = `
struct Dims {
	in_w: u32,
	in_h: u32,
	out_w: u32,
	out_h: u32,
};
`

const packUnpackFns = `
fn unpack_rgba(p: u32) -> vec4<f32> {
	let r = f32(p & 0xffu);
	let g = f32((p >> 8u) & 0xffu);
	let b = f32((p >> 16u) & 0xffu);
	let a = f32((p >> 24u) & 0xffu);
	return vec4<f32>(r, g, b, a);
}

fn pack_rgba(c: vec4<f32>) -> u32 {
	let r = u32(clamp(c.x, 0.0, 255.0));
	let g = u32(clamp(c.y, 0.0, 255.0));
	let b = u32(clamp(c.z, 0.0, 255.0));
	let a = u32(clamp(c.w, 0.0, 255.0));
	return r | (g << 8u) | (b << 16u) | (a << 24u);
}
`

// nearestWGSL implements point sampling at floor((i+0.5)*in/out) per axis.
const nearestWGSL = dimsStruct + `
@group(0) @binding(0) var<uniform> dims: Dims;
@group(0) @binding(1) var<storage, read> input_pixels: array<u32>;
@group(0) @binding(2) var<storage, read_write> output_pixels: array<u32>;

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
	if (gid.x >= dims.out_w || gid.y >= dims.out_h) {
		return;
	}

	let fx = (f32(gid.x) + 0.5) * f32(dims.in_w) / f32(dims.out_w);
	let fy = (f32(gid.y) + 0.5) * f32(dims.in_h) / f32(dims.out_h);
	let src_x = min(u32(floor(fx)), dims.in_w - 1u);
	let src_y = min(u32(floor(fy)), dims.in_h - 1u);

	let src_idx = src_y * dims.in_w + src_x;
	let dst_idx = gid.y * dims.out_w + gid.x;
	output_pixels[dst_idx] = input_pixels[src_idx];
}
`

// bilinearWGSL implements a 2x2 weighted average with weights equal to the
// fractional source coordinates.
const bilinearWGSL = dimsStruct + packUnpackFns + `
@group(0) @binding(0) var<uniform> dims: Dims;
@group(0) @binding(1) var<storage, read> input_pixels: array<u32>;
@group(0) @binding(2) var<storage, read_write> output_pixels: array<u32>;

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
	if (gid.x >= dims.out_w || gid.y >= dims.out_h) {
		return;
	}

	let fx = (f32(gid.x) + 0.5) * f32(dims.in_w) / f32(dims.out_w) - 0.5;
	let fy = (f32(gid.y) + 0.5) * f32(dims.in_h) / f32(dims.out_h) - 0.5;

	let x0 = clamp(i32(floor(fx)), 0, i32(dims.in_w) - 1);
	let y0 = clamp(i32(floor(fy)), 0, i32(dims.in_h) - 1);
	let x1 = clamp(x0 + 1, 0, i32(dims.in_w) - 1);
	let y1 = clamp(y0 + 1, 0, i32(dims.in_h) - 1);

	let tx = clamp(fx - floor(fx), 0.0, 1.0);
	let ty = clamp(fy - floor(fy), 0.0, 1.0);

	let c00 = unpack_rgba(input_pixels[u32(y0) * dims.in_w + u32(x0)]);
	let c10 = unpack_rgba(input_pixels[u32(y0) * dims.in_w + u32(x1)]);
	let c01 = unpack_rgba(input_pixels[u32(y1) * dims.in_w + u32(x0)]);
	let c11 = unpack_rgba(input_pixels[u32(y1) * dims.in_w + u32(x1)]);

	let top = mix(c00, c10, tx);
	let bottom = mix(c01, c11, tx);
	let result = mix(top, bottom, ty);

	let dst_idx = gid.y * dims.out_w + gid.x;
	output_pixels[dst_idx] = pack_rgba(result);
}
`

const lanczosFns = `
fn lanczos_sinc(x: f32) -> f32 {
	if (abs(x) < 1e-6) {
		return 1.0;
	}
	let px = 3.14159265359 * x;
	return sin(px) / px;
}

fn lanczos3(x: f32) -> f32 {
	if (abs(x) >= 3.0) {
		return 0.0;
	}
	return lanczos_sinc(x) * lanczos_sinc(x / 3.0);
}
`

// lanczosHWGSL is the horizontal pass of a separable 6-tap Lanczos-3 resample: reads
// the in_w x in_h source and writes an out_w x in_h intermediate. Boundary taps clamp
// to the source edge rather than wrapping.
const lanczosHWGSL = dimsStruct + packUnpackFns + lanczosFns + `
@group(0) @binding(0) var<uniform> dims: Dims;
@group(0) @binding(1) var<storage, read> input_pixels: array<u32>;
@group(0) @binding(2) var<storage, read_write> intermediate_pixels: array<u32>;

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
	if (gid.x >= dims.out_w || gid.y >= dims.in_h) {
		return;
	}

	let sx = (f32(gid.x) + 0.5) * f32(dims.in_w) / f32(dims.out_w) - 0.5;
	let center = i32(floor(sx));

	var accum = vec4<f32>(0.0, 0.0, 0.0, 0.0);
	var weight_sum = 0.0;

	for (var t: i32 = -2; t <= 3; t = t + 1) {
		let tap = center + t;
		let w = lanczos3(sx - f32(tap));
		let clamped = clamp(tap, 0, i32(dims.in_w) - 1);
		let c = unpack_rgba(input_pixels[gid.y * dims.in_w + u32(clamped)]);
		accum = accum + c * w;
		weight_sum = weight_sum + w;
	}

	var result = accum;
	if (abs(weight_sum) > 1e-6) {
		result = accum / weight_sum;
	}

	let dst_idx = gid.y * dims.out_w + gid.x;
	intermediate_pixels[dst_idx] = pack_rgba(result);
}
`

// lanczosVWGSL is the vertical pass: reads the out_w x in_h intermediate written by
// lanczosHWGSL and writes the final out_w x out_h image.
const lanczosVWGSL = dimsStruct + packUnpackFns + lanczosFns + `
@group(0) @binding(0) var<uniform> dims: Dims;
@group(0) @binding(1) var<storage, read> intermediate_pixels: array<u32>;
@group(0) @binding(2) var<storage, read_write> output_pixels: array<u32>;

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
	if (gid.x >= dims.out_w || gid.y >= dims.out_h) {
		return;
	}

	let sy = (f32(gid.y) + 0.5) * f32(dims.in_h) / f32(dims.out_h) - 0.5;
	let center = i32(floor(sy));

	var accum = vec4<f32>(0.0, 0.0, 0.0, 0.0);
	var weight_sum = 0.0;

	for (var t: i32 = -2; t <= 3; t = t + 1) {
		let tap = center + t;
		let w = lanczos3(sy - f32(tap));
		let clamped = clamp(tap, 0, i32(dims.in_h) - 1);
		let c = unpack_rgba(intermediate_pixels[u32(clamped) * dims.out_w + gid.x]);
		accum = accum + c * w;
		weight_sum = weight_sum + w;
	}

	var result = accum;
	if (abs(weight_sum) > 1e-6) {
		result = accum / weight_sum;
	}

	let dst_idx = gid.y * dims.out_w + gid.x;
	output_pixels[dst_idx] = pack_rgba(result);
}
`
