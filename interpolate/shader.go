package interpolate

// Pixel buffers are packed RGBA8, one u32 per pixel, little-endian byte order, matching
// frame.Upscaled/frame.Interpolated's byte layout exactly, the same convention the
// upscale package's shaders use.

const dimsStruct = `
struct Dims {
	width: u32,
	height: u32,
	t: f32,
	search_radius: u32,
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

// motionWGSL is the compute pass synthesizing a frame at fractional time t between
// frame_a and frame_b. Per output pixel: (1) a small-window SAD motion search around
// the pixel between frame_a and frame_b, (2) frame_a is warped forward by t*motion and
// frame_b is warped backward by (1-t)*motion, (3) the two warped samples are blended
// with weights (1-t) and t. Samples outside the image clamp to the edge, matching every
// upscale shader's boundary handling.
const motionWGSL = dimsStruct + packUnpackFns + `
@group(0) @binding(0) var<uniform> dims: Dims;
@group(0) @binding(1) var<storage, read> frame_a: array<u32>;
@group(0) @binding(2) var<storage, read> frame_b: array<u32>;
@group(0) @binding(3) var<storage, read_write> frame_out: array<u32>;

fn sample(buf_is_a: bool, x: i32, y: i32) -> vec4<f32> {
	let cx = clamp(x, 0, i32(dims.width) - 1);
	let cy = clamp(y, 0, i32(dims.height) - 1);
	let idx = u32(cy) * dims.width + u32(cx);
	if (buf_is_a) {
		return unpack_rgba(frame_a[idx]);
	}
	return unpack_rgba(frame_b[idx]);
}

fn patch_sad(px: i32, py: i32, dx: i32, dy: i32) -> f32 {
	var sad = 0.0;
	for (var j: i32 = -1; j <= 1; j = j + 1) {
		for (var i: i32 = -1; i <= 1; i = i + 1) {
			let a = sample(true, px + i, py + j);
			let b = sample(false, px + dx + i, py + dy + j);
			sad = sad + abs(a.x - b.x) + abs(a.y - b.y) + abs(a.z - b.z);
		}
	}
	return sad;
}

@compute @workgroup_size(32, 8, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
	if (gid.x >= dims.width || gid.y >= dims.height) {
		return;
	}
	let px = i32(gid.x);
	let py = i32(gid.y);

	var best_dx: i32 = 0;
	var best_dy: i32 = 0;
	var best_sad: f32 = 1e9;
	let r = i32(dims.search_radius);
	for (var dy: i32 = -r; dy <= r; dy = dy + 1) {
		for (var dx: i32 = -r; dx <= r; dx = dx + 1) {
			let sad = patch_sad(px, py, dx, dy);
			if (sad < best_sad) {
				best_sad = sad;
				best_dx = dx;
				best_dy = dy;
			}
		}
	}

	let mvx = f32(best_dx);
	let mvy = f32(best_dy);
	let t = dims.t;

	let warped_a = sample(true, px + i32(round(t * mvx)), py + i32(round(t * mvy)));
	let warped_b = sample(false, px - i32(round((1.0 - t) * mvx)), py - i32(round((1.0 - t) * mvy)));

	let blended = warped_a * (1.0 - t) + warped_b * t;

	let idx = gid.y * dims.width + gid.x;
	frame_out[idx] = pack_rgba(blended);
}
`
