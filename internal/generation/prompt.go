package generation

// qualitySuffix steers the model toward presentable renders regardless of
// how terse the user prompt is.
const qualitySuffix = "professional architectural visualization, high quality, detailed, 4k, photorealistic"

// DefaultNegativePrompt filters the common failure modes of architectural
// image models. Used when the caller does not supply one.
const DefaultNegativePrompt = "blurry, low quality, distorted, unrealistic, amateur, cartoon, painting, sketch, text, watermark"

// BuildPrompt expands the validated user prompt with the optional style and
// the standing quality suffix before submission to the provider.
func BuildPrompt(prompt, style string) string {
	if style != "" {
		return prompt + ", " + style + " architectural style, " + qualitySuffix
	}
	return prompt + ", " + qualitySuffix
}
