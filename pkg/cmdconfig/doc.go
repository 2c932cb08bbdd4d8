// Package cmdconfig provides the command and job config variants, their JSON
// and YAML codecs, and command expansion.
//
// Variants are registered by name. JSON documents carry the name in an
// "@type" property; YAML command files use a "type" key which also accepts
// short aliases such as "persist" and "replicate".
package cmdconfig
