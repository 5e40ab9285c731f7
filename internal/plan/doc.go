// Package plan reads YAML run plans for the multi-kernel classifier.
//
//	basename: ep01
//	ind_error_thr: 0.01
//	avg_error_thr: 0.006
//	exclude:
//	  - [0, 2157]
//	exclude_files:
//	  - ep01_credits.txt
//	targets:
//	  - kernel: bicubic:b=0:c=0.5
//	    base_height: 720
//	    base_width: 1280
//	  - kernel: {name: lanczos, taps: 3}
//	    src_height: 719.8
//	    base_height: 720
//	    base_width: 1280
//	    bias: 1.05
package plan
