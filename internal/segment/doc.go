// Package segment cuts verse clips out of chapter recordings and joins them
// into passage clips with ffmpeg.
//
// Every output is a Clip backed by a temp file under the work directory.
// Callers own the clip and must Close it once the file has been published or
// otherwise consumed. Failing operations remove their partial output.
package segment
