// Package types defines the shared data model of the categorization
// pipeline: classification requests, ranked prediction results, priority
// classes, and the unified error taxonomy used across all components.
package types
