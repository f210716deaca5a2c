// Package deb builds Debian binary packages (.deb) from a directory tree.
//
// # Layout
//
// A .deb file is an ar archive holding, in this order, the debian-binary
// member ("2.0\n"), the compressed control tarball and the compressed data
// tarball. Each member is preceded by a 60 bytes textual header and padded
// to an even length.
//
// # Building blocks
//
//   - MemberHeader encodes and decodes ar member headers.
//   - ArchiveWriter appends members to an ar stream in call order.
//   - Compression selects the codec of the tarballs: plain, gzip, xz or zstd.
//   - TarStager turns a directory into a compressed tarball, rewriting every
//     entry header through a fixed pipeline and an optional hook.
//   - Packager drives a whole build: it populates a scratch tree, runs the
//     hooks, stages the control and data tarballs concurrently, assembles
//     the archive under a temporary name and renames it into place.
//
// Inspect reads a .deb back, which is mostly useful to check a build.
//
// # Errors
//
// Every error returned by this package matches one of ErrConfig, ErrFormat,
// ErrIO or ErrState with errors.Is. Packager errors are *StageError values
// naming the stage that failed.
package deb
