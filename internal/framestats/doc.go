// Package framestats stores per-frame statistics in CSV files so that a
// clip is analysed once and classified many times with different
// thresholds. A loaded Table is a scenes.Source.
//
// File layout:
//
//	frame,scene_change,complexity,bicubic_0_0.5_720,lanczos_3_720
//	0,false,0.0412,0.00013,0.00021
//	1,false,0.0409,0.00012,0.00020
//
// Any engine that can produce these columns can feed the classifiers.
package framestats
