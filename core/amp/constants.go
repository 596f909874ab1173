package amp

// Fixed values required by the AMP validator. They are compared verbatim,
// so they must not be reformatted.
const (
	// RuntimeScriptURL is the AMP runtime.
	RuntimeScriptURL = "https://cdn.ampproject.org/v0.js"

	// FormScriptURL is the amp-form extension.
	FormScriptURL = "https://cdn.ampproject.org/v0/amp-form-0.1.js"

	// Viewport is the content of the mandatory viewport meta tag.
	Viewport = "width=device-width,minimum-scale=1,initial-scale=1"

	// Segment is the leading path segment that marks an AMP request.
	Segment = "amp"

	// BoilerplateCSS hides the body until the runtime has started.
	BoilerplateCSS = "body{-webkit-animation:-amp-start 8s steps(1,end) 0s 1 normal both;-moz-animation:-amp-start 8s steps(1,end) 0s 1 normal both;-ms-animation:-amp-start 8s steps(1,end) 0s 1 normal both;animation:-amp-start 8s steps(1,end) 0s 1 normal both}@-webkit-keyframes -amp-start{from{visibility:hidden}to{visibility:visible}}@-moz-keyframes -amp-start{from{visibility:hidden}to{visibility:visible}}@-ms-keyframes -amp-start{from{visibility:hidden}to{visibility:visible}}@-o-keyframes -amp-start{from{visibility:hidden}to{visibility:visible}}@keyframes -amp-start{from{visibility:hidden}to{visibility:visible}}"

	// NoscriptBoilerplateCSS undoes BoilerplateCSS when scripting is off.
	NoscriptBoilerplateCSS = "body{-webkit-animation:none;-moz-animation:none;-ms-animation:none;animation:none}"
)

// allowedScriptTypes are the script types that survive script stripping.
var allowedScriptTypes = []string{"application/ld+json"}

// attributeAllowList maps a tag to the only attributes it may keep.
var attributeAllowList = []struct {
	tag     string
	allowed []string
}{
	{tag: "div", allowed: []string{"class", "id", "style"}},
	{tag: "button", allowed: []string{"class", "id", "style", "type"}},
}

// blockedImageAttributes are dropped when an <img> becomes <amp-img>.
var blockedImageAttributes = []string{"loading"}
