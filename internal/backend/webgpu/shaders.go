package webgpu

import "strings"

// workgroupSize is the number of invocations per workgroup of every shader.
const workgroupSize = 256

// binaryShaderTemplate computes result = OP(a[ai], b[bi]) with NumPy-style broadcasting.
// Params layout: see binaryParams.
const binaryShaderTemplate = `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;
@group(0) @binding(3) var<storage, read> params: array<u32>;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx >= params[0]) {
        return;
    }
    let rank = params[1];
    var rem = idx;
    var ai = 0u;
    var bi = 0u;
    for (var d = i32(rank) - 1; d >= 0; d = d - 1) {
        let dim = params[4u + u32(d)];
        let coord = rem % dim;
        rem = rem / dim;
        ai = ai + coord * params[10u + u32(d)];
        bi = bi + coord * params[16u + u32(d)];
    }
    let x = a[ai];
    let y = b[bi];
    result[idx] = OP;
}
`

// unaryShaderTemplate computes result = OP(input[idx]).
const unaryShaderTemplate = `
@group(0) @binding(0) var<storage, read> input: array<f32>;
@group(0) @binding(1) var<storage, read_write> result: array<f32>;
@group(0) @binding(2) var<storage, read> params: array<u32>;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx >= params[0]) {
        return;
    }
    let x = input[idx];
    result[idx] = OP;
}
`

// sumShader reduces the input over the reduce axes, one invocation per output element.
// Params layout: see sumParams.
const sumShader = `
@group(0) @binding(0) var<storage, read> input: array<f32>;
@group(0) @binding(1) var<storage, read_write> result: array<f32>;
@group(0) @binding(2) var<storage, read> params: array<u32>;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx >= params[0]) {
        return;
    }
    var rem = idx;
    var base = 0u;
    for (var d = i32(params[1]) - 1; d >= 0; d = d - 1) {
        let dim = params[4u + u32(d)];
        base = base + (rem % dim) * params[10u + u32(d)];
        rem = rem / dim;
    }
    var acc = 0.0;
    for (var r = 0u; r < params[2]; r = r + 1u) {
        var rrem = r;
        var offset = base;
        for (var d = i32(params[3]) - 1; d >= 0; d = d - 1) {
            let dim = params[16u + u32(d)];
            offset = offset + (rrem % dim) * params[22u + u32(d)];
            rrem = rrem / dim;
        }
        acc = acc + input[offset];
    }
    result[idx] = acc;
}
`

func binaryShader(expr string) string {
	return strings.Replace(binaryShaderTemplate, "OP", expr, 1)
}

func unaryShader(expr string) string {
	return strings.Replace(unaryShaderTemplate, "OP", expr, 1)
}

// shaderSources maps pipeline names to WGSL code. Pipelines are compiled by the kernel
// setup hook when the backend becomes active.
var shaderSources = map[string]string{
	"add":    binaryShader("x + y"),
	"sub":    binaryShader("x - y"),
	"mul":    binaryShader("x * y"),
	"div":    binaryShader("x / y"),
	"neg":    unaryShader("-x"),
	"exp":    unaryShader("exp(x)"),
	"square": unaryShader("x * x"),
	"sum":    sumShader,
}
