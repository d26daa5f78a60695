// utilitário pequeno para formatação de valores numéricos em headers.
// O header de retry leva milissegundos crus (ex: "86399998"), sem fmt.

package ipfilter

import "strconv"

func formatMillis(v int64) string { return strconv.FormatInt(v, 10) }
