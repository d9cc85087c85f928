package main

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/shirou/gopsutil/v3/mem"
)

func main() {
	fmt.Println("==============================================")
	fmt.Println("  policycrawl 环境验证")
	fmt.Println("==============================================")
	fmt.Println()

	allOK := true

	fmt.Printf("✅ Go版本: %s\n", runtime.Version())
	fmt.Printf("✅ 操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	if vm, err := mem.VirtualMemory(); err == nil {
		fmt.Printf("✅ 可用内存: %.1f GB / %.1f GB\n", float64(vm.Available)/(1<<30), float64(vm.Total)/(1<<30))
		if vm.Available < 1<<30 {
			fmt.Println("⚠️  可用内存不足1GB, 动态渲染与并发下载会受限")
		}
	} else {
		fmt.Printf("⚠️  无法读取内存信息: %v\n", err)
	}

	// 动态模式需要本地Chromium, 找不到时rod会在首次使用时下载
	if path, ok := launcher.LookPath(); ok {
		fmt.Printf("✅ 浏览器: %s\n", path)
	} else {
		fmt.Println("⚠️  未找到Chrome/Chromium - dynamic模式首次运行时将自动下载")
	}

	fmt.Println()
	fmt.Println("检查Go模块依赖...")
	if _, err := os.Stat("go.mod"); err == nil {
		fmt.Println("✅ go.mod文件存在")

		fmt.Println("正在下载依赖...")
		cmd := exec.Command("go", "mod", "download")
		if err := cmd.Run(); err != nil {
			fmt.Printf("❌ go mod download失败: %v\n", err)
			allOK = false
		} else {
			fmt.Println("✅ 依赖下载完成")
		}
	} else {
		fmt.Println("❌ go.mod文件不存在")
		allOK = false
	}

	fmt.Println()
	fmt.Println("检查项目结构...")
	requiredDirs := []string{
		"cmd/policycrawl",
		"internal/attachments",
		"internal/core",
		"internal/crawlers",
		"internal/segmenter",
		"internal/sheet",
		"internal/utils",
		"internal/models",
		"configs",
	}

	for _, dir := range requiredDirs {
		if _, err := os.Stat(dir); err == nil {
			fmt.Printf("✅ %s/\n", dir)
		} else {
			fmt.Printf("❌ %s/ 不存在\n", dir)
			allOK = false
		}
	}

	// sites.yaml 缺失时首次运行会生成模板
	for _, file := range []string{"configs/config.yaml", "configs/sites.yaml"} {
		if _, err := os.Stat(file); err == nil {
			fmt.Printf("✅ %s\n", file)
		} else {
			fmt.Printf("⚠️  %s 不存在, 将使用默认配置\n", file)
		}
	}

	fmt.Println()
	fmt.Println("==============================================")
	if allOK {
		fmt.Println("✅ 环境验证通过!")
		fmt.Println()
		fmt.Println("下一步:")
		fmt.Println("  1. 运行 'go build -o policycrawl ./cmd/policycrawl' 构建项目")
		fmt.Println("  2. 运行 './policycrawl validate-config --probe' 检查站点连通性")
		fmt.Println("  3. 运行 './policycrawl crawl ndrc --max-pages 1' 试爬")
		os.Exit(0)
	}
	fmt.Println("❌ 环境验证失败,请解决上述问题。")
	os.Exit(1)
}
