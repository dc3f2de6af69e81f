// Package fileutil holds file copy helpers shared by upload and export.
package fileutil
