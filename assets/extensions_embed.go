package assets

import _ "embed"

// Extension scripts embedded at compile time

// WelcomeExtensionName is the name the embedded extension registers under.
const WelcomeExtensionName = "welcome"

// WelcomeExtension is loaded when the extensions directory has no scripts,
// so a fresh install always has one view type to resolve.
//
//go:embed extensions/welcome.js
var WelcomeExtension string
